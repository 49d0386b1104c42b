package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockChecker is a mock implementation of Checker.
type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) Check(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// mockRecorder is a mock implementation of StatusRecorder.
type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) SetHealthStatus(healthy bool) {
	m.Called(healthy)
}

func TestHealthCheck_LivenessHandler(t *testing.T) {
	checker := &mockChecker{}
	hc := NewHealthCheck(checker, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	hc.LivenessHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	checker.AssertNotCalled(t, "Check", mock.Anything)
}

func TestHealthCheck_ReadinessHandler(t *testing.T) {
	checker := &mockChecker{}
	checker.On("Check", mock.Anything).Return(errors.New("No consolidated files found in data/consolidated or .")).Once()
	checker.On("Check", mock.Anything).Return(nil).Once()
	recorder := &mockRecorder{}
	recorder.On("SetHealthStatus", false).Once()
	recorder.On("SetHealthStatus", true).Once()
	hc := NewHealthCheck(checker, recorder, zap.NewNop())

	t.Run("not ready without dataset", func(t *testing.T) {
		w := httptest.NewRecorder()
		hc.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Contains(t, resp.Error, "No consolidated files found")
	})

	t.Run("becomes ready once the dataset appears", func(t *testing.T) {
		w := httptest.NewRecorder()
		hc.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, hc.IsReady())
	})

	t.Run("cached ready skips the checker", func(t *testing.T) {
		w := httptest.NewRecorder()
		hc.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		checker.AssertNumberOfCalls(t, "Check", 2)
	})

	checker.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestHealthCheck_Run(t *testing.T) {
	checker := &mockChecker{}
	checker.On("Check", mock.Anything).Return(nil).Times(5)
	checker.On("Check", mock.Anything).Return(errors.New("gone"))
	hc := NewHealthCheck(checker, nil, zap.NewNop())
	hc.checkInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hc.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, hc.IsReady, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return !hc.IsReady() }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	checker.AssertExpectations(t)
}

func TestHealthCheck_SetReady(t *testing.T) {
	hc := NewHealthCheck(&mockChecker{}, nil, zap.NewNop())

	assert.False(t, hc.IsReady())
	hc.SetReady(true)
	assert.True(t, hc.IsReady())
	hc.Invalidate()
	assert.False(t, hc.IsReady())
}

func TestHealthCheck_ShutdownIsSticky(t *testing.T) {
	checker := &mockChecker{}
	checker.On("Check", mock.Anything).Return(nil)
	recorder := &mockRecorder{}
	recorder.On("SetHealthStatus", mock.Anything)
	hc := NewHealthCheck(checker, recorder, zap.NewNop())

	require.NoError(t, hc.runCheck(context.Background()))
	require.True(t, hc.IsReady())

	hc.Shutdown()
	assert.False(t, hc.IsReady())

	assert.ErrorIs(t, hc.runCheck(context.Background()), ErrShuttingDown)
	hc.SetReady(true)
	assert.False(t, hc.IsReady())

	w := httptest.NewRecorder()
	hc.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	checker.AssertNumberOfCalls(t, "Check", 1)
	recorder.AssertCalled(t, "SetHealthStatus", false)
}
