package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	planerrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/metrics"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleDataset = `{
  "metadata": {"generated_at": "2025-11-03T10:00:00Z", "total_brands": 1, "brands": ["telus"], "record_count": 1, "event_id": "20251103_100000"},
  "brands": {
    "telus": {
      "scenario_count": 1,
      "scenarios": {
        "1_line_mobile_only": {
          "source_files": ["telus_llm_output_all_plans_20251103_100000.json"],
          "plans": [
            {"index": 1, "planName": "Unlimited 100", "currentPrice": "$65/mo", "dataAmount": "100GB", "features": ["5G+"], "surprise": true},
            "not a plan"
          ]
        }
      }
    }
  },
  "records": [{"brand": "Telus", "scenario": "1_line_mobile_only", "name": "Unlimited 100", "price": "$65/mo", "data": "100GB"}]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileTimestamp(t *testing.T) {
	assert.Equal(t, "20251103_100000", FileTimestamp("data/consolidated/final_consolidated_plans_20251103_100000.json"))
	assert.Equal(t, "00000000_000000", FileTimestamp("final_consolidated_plans_latest.json"))
}

func TestFinder_Latest(t *testing.T) {
	root := t.TempDir()
	consolidated := filepath.Join(root, "data", "consolidated")

	t.Run("no files", func(t *testing.T) {
		f := NewFinder(consolidated, root)
		_, err := f.Latest()
		require.Error(t, err)
		assert.True(t, planerrors.Is(err, planerrors.ErrorCodeNoConsolidatedFiles))
		assert.Contains(t, err.Error(), consolidated)
	})

	writeFile(t, consolidated, "final_consolidated_plans_20251101_090000.json", sampleDataset)
	writeFile(t, root, "final_consolidated_plans_20251102_090000.json", sampleDataset)
	writeFile(t, consolidated, "final_consolidated_plans_nostamp.json", sampleDataset)
	writeFile(t, consolidated, "other_20251231_000000.json", sampleDataset)

	t.Run("newest by filename timestamp across directories", func(t *testing.T) {
		f := NewFinder(consolidated, root)
		latest, err := f.Latest()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "final_consolidated_plans_20251102_090000.json"), latest)
	})

	t.Run("undated files sort last", func(t *testing.T) {
		f := NewFinder(consolidated, root)
		files, err := f.Candidates()
		require.NoError(t, err)
		require.Len(t, files, 3)
		assert.Equal(t, "final_consolidated_plans_nostamp.json", filepath.Base(files[2]))
	})

	t.Run("mtime is ignored", func(t *testing.T) {
		old := filepath.Join(consolidated, "final_consolidated_plans_20251101_090000.json")
		future := time.Now().Add(48 * time.Hour)
		require.NoError(t, os.Chtimes(old, future, future))

		latest, err := NewFinder(consolidated, root).Latest()
		require.NoError(t, err)
		assert.Equal(t, "final_consolidated_plans_20251102_090000.json", filepath.Base(latest))
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file with tolerant plans", func(t *testing.T) {
		path := writeFile(t, dir, "final_consolidated_plans_20251103_100000.json", sampleDataset)
		ds, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "20251103_100000", ds.Metadata.EventID)
		plans := ds.Brands["telus"].Scenarios["1_line_mobile_only"].Plans
		require.Len(t, plans, 1)
		assert.Equal(t, "Unlimited 100", plans[0].PlanName)
		assert.Contains(t, plans[0].Extra, "surprise")
		require.Len(t, ds.Records, 1)
		assert.Equal(t, "Telus", ds.Records[0].Brand)
	})

	t.Run("invalid json", func(t *testing.T) {
		path := writeFile(t, dir, "final_consolidated_plans_20251104_100000.json", "{not json")
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, planerrors.Is(err, planerrors.ErrorCodeInvalidDataset))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.json"))
		assert.True(t, planerrors.Is(err, planerrors.ErrorCodeInvalidDataset))
	})

	t.Run("empty object", func(t *testing.T) {
		ds, err := Parse("x", []byte(`{}`))
		require.NoError(t, err)
		assert.NotNil(t, ds.Brands)
	})
}

func TestCache(t *testing.T) {
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute, 2)
	c.now = func() time.Time { return now }

	k1 := Key{Path: "a", Size: 1}
	k2 := Key{Path: "b", Size: 1}
	k3 := Key{Path: "c", Size: 1}
	ds := &model.Dataset{}

	_, ok := c.Get(k1)
	assert.False(t, ok)

	c.Put(k1, ds)
	got, ok := c.Get(k1)
	require.True(t, ok)
	assert.Same(t, ds, got)

	t.Run("size change is a different key", func(t *testing.T) {
		_, ok := c.Get(Key{Path: "a", Size: 2})
		assert.False(t, ok)
	})

	t.Run("evicts oldest when full", func(t *testing.T) {
		now = now.Add(time.Second)
		c.Put(k2, ds)
		now = now.Add(time.Second)
		c.Put(k3, ds)
		assert.Equal(t, 2, c.Size())
		_, ok := c.Get(k1)
		assert.False(t, ok)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		_, ok := c.Get(k3)
		assert.False(t, ok)
	})

	t.Run("clear reports count", func(t *testing.T) {
		assert.Equal(t, 2, c.Clear())
		assert.Equal(t, 0, c.Size())
	})
}

func TestStore_Active(t *testing.T) {
	root := t.TempDir()
	consolidated := filepath.Join(root, "consolidated")
	store := NewStore(NewFinder(consolidated, root), NewCache(0, 4), metrics.NewMetrics(), zap.NewNop())

	_, err := store.Active(context.Background())
	require.Error(t, err)
	assert.True(t, planerrors.Is(err, planerrors.ErrorCodeNoConsolidatedFiles))
	assert.Error(t, store.Check(context.Background()))

	writeFile(t, consolidated, "final_consolidated_plans_20251103_100000.json", sampleDataset)

	first, err := store.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "final_consolidated_plans_20251103_100000.json", first.Name)
	assert.Equal(t, 1, store.cache.Size())

	second, err := store.Active(context.Background())
	require.NoError(t, err)
	assert.Same(t, first.Dataset, second.Dataset)

	t.Run("new file is picked up without refresh", func(t *testing.T) {
		writeFile(t, consolidated, "final_consolidated_plans_20251104_100000.json", sampleDataset)
		active, err := store.Active(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "final_consolidated_plans_20251104_100000.json", active.Name)
	})

	t.Run("refresh clears", func(t *testing.T) {
		assert.Equal(t, 2, store.Refresh())
		assert.Equal(t, 0, store.cache.Size())
		assert.NoError(t, store.Check(context.Background()))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.Active(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWatcher_DebouncesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan struct{}, 10)

	w, err := NewWatcher([]string{dir, filepath.Join(dir, "missing")}, 50*time.Millisecond, func() {
		changes <- struct{}{}
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, dir, "notes.txt", "ignored")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, w.Fired())

	for i := 0; i < 3; i++ {
		writeFile(t, dir, "final_consolidated_plans_20251103_100000.json", sampleDataset)
	}

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire")
	}
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, w.Fired())
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("/x/final_consolidated_plans_20251103_100000.json"))
	assert.False(t, Matches("/x/final_consolidated_plans_20251103_100000.json.tmp"))
	assert.False(t, Matches("/x/plans.json"))
}
