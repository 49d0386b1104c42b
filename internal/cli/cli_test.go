package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/extractor"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/scraper"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/stripper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func strippedPage(carrier string, sc scraper.Scenario) string {
	return scraper.Header("20250301_090000", carrier, sc) + `<div class="plan"><h2>Essential</h2><p class="price">Current price: $55</p></div>` + "\n"
}

func TestRootHasSubcommands(t *testing.T) {
	var names []string
	for _, c := range NewRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "consolidate", "strip", "extract", "carriers", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2025-03-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "planctl 1.2.3 (commit: abc123, built: 2025-03-01)\n", out)
}

func TestCarriersFromCatalogFile(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "carriers.yaml"), `
carriers:
  acme:
    scenarios:
      - name: 1_line_mobile_only
        lines: 1
        url: https://example.test/acme
`)
	t.Setenv("PLANBOARD_SCRAPER_CATALOG_PATH", path)

	out, err := execute(t, "carriers", "-v")
	require.NoError(t, err)
	assert.Equal(t, "acme (1 scenarios)\n  1_line_mobile_only   https://example.test/acme\n", out)
}

func TestCarriersFallsBackToBuiltInCatalog(t *testing.T) {
	t.Setenv("PLANBOARD_SCRAPER_CATALOG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	out, err := execute(t, "carriers")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "telus (8 scenarios)", lines[0])
	assert.Equal(t, "freedom (1 scenarios)", lines[3])
}

func TestCarriersInvalidCatalog(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "carriers.yaml"), "carriers: {}\n")
	t.Setenv("PLANBOARD_SCRAPER_CATALOG_PATH", path)

	_, err := execute(t, "carriers")
	assert.Error(t, err)
}

func TestStripStats(t *testing.T) {
	raw := `<html><body><div data-testid="mfe-rate-plan-tile-1-container"><h3>Essential</h3><span>$55/mo</span><ul><li>50GB 5G data</li></ul></div></body></html>`
	path := writeFile(t, filepath.Join(t.TempDir(), "telus.html"), raw)

	out, err := execute(t, "strip", "telus", path, "--stats")
	require.NoError(t, err)

	var stats stripper.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, len(raw), stats.OriginalSize)
}

func TestStripWritesFile(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "raw.html"), `<html><body><p>nothing here</p></body></html>`)
	dst := filepath.Join(dir, "stripped.html")

	out, err := execute(t, "strip", "acme", in, "-o", dst)
	require.NoError(t, err)
	assert.Contains(t, out, dst+": ")
	assert.FileExists(t, dst)
}

func TestStripRequiresArgs(t *testing.T) {
	_, err := execute(t, "strip", "telus")
	assert.Error(t, err)
}

func TestRequestFor(t *testing.T) {
	sc := scraper.Scenario{Name: "3_line_bundled", Lines: 3, Bundled: true, URL: "https://example.test/p"}
	page := strippedPage("telus", sc)

	req := requestFor(page, &extractOptions{})
	assert.Equal(t, "Telus", req.Carrier)
	assert.Equal(t, "3_line_bundled", req.Scenario)
	assert.Equal(t, 3, req.Lines)
	assert.True(t, req.Bundled)
	assert.Equal(t, "https://example.test/p", req.URL)
	assert.Equal(t, page, req.HTML)

	req = requestFor(page, &extractOptions{carrier: "ROGERS", scenario: "1_line_mobile_only"})
	assert.Equal(t, "Rogers", req.Carrier)
	assert.Equal(t, "1_line_mobile_only", req.Scenario)

	req = requestFor("<div>no header</div>", &extractOptions{carrier: "bell", scenario: "2_line_bundled"})
	assert.Equal(t, 2, req.Lines)
	assert.True(t, req.Bundled)

	req = requestFor("<div>no header</div>", &extractOptions{carrier: "fido"})
	assert.Equal(t, scraper.DefaultScenario, req.Scenario)
	assert.Equal(t, 1, req.Lines)
}

func TestExtractEstimate(t *testing.T) {
	sc := scraper.Scenario{Name: "1_line_mobile_only", Lines: 1, URL: "https://example.test/p"}
	path := writeFile(t, filepath.Join(t.TempDir(), "page.html"), strippedPage("telus", sc))

	out, err := execute(t, "extract", path, "--estimate")
	require.NoError(t, err)

	var est extractor.Estimate
	require.NoError(t, json.Unmarshal([]byte(out), &est))
	assert.Equal(t, extractor.EstimatedOutputTokens, est.OutputTokens)
	assert.Greater(t, est.InputTokens, 0)
	assert.True(t, est.WithinBudget)
}

func TestExtractRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PLANBOARD_LLM_OPENAI_API_KEY", "")
	sc := scraper.Scenario{Name: "1_line_mobile_only", Lines: 1}
	path := writeFile(t, filepath.Join(t.TempDir(), "page.html"), strippedPage("telus", sc))

	_, err := execute(t, "extract", path, "--model", "gpt-5-nano")
	assert.Error(t, err)
}

func TestExtractCallsModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"scenario\":\"1_line_mobile_only\",\"plans\":[{\"planName\":\"Essential\",\"currentPrice\":\"$55\"}]}"}}],"usage":{"prompt_tokens":120,"completion_tokens":30}}`))
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("PLANBOARD_LLM_OPENAI_BASE_URL", srv.URL)
	dir := t.TempDir()
	sc := scraper.Scenario{Name: "1_line_mobile_only", Lines: 1}
	path := writeFile(t, filepath.Join(dir, "page.html"), strippedPage("telus", sc))
	dst := filepath.Join(dir, "out.json")

	out, err := execute(t, "extract", path, "--model", "gpt-5-nano", "-o", dst)
	require.NoError(t, err)
	assert.Equal(t, dst+": 1 plans (120 input, 30 output tokens)\n", out)

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	var data model.ScenarioExtraction
	require.NoError(t, json.Unmarshal(raw, &data))
	require.Len(t, data.Plans, 1)
	assert.Equal(t, "Essential", data.Plans[0].PlanName)
}

func TestConsolidateCommand(t *testing.T) {
	dataDir := t.TempDir()
	rootDir := t.TempDir()
	t.Setenv("PLANBOARD_DATA_ROOT_DIR", rootDir)

	rollup := `{"carrier":"telus","event_id":"20250301_090000","scenarios":{"1_line_mobile_only":{"plans":[{"planName":"Essential","currentPrice":"$55","dataAmount":"50GB"}]}}}`
	writeFile(t, filepath.Join(dataDir, "telus", "output", "telus_llm_output_all_plans_20250301_090000.json"), rollup)

	out, err := execute(t, "--data-dir", dataDir, "consolidate", "--event-id", "20250301_090000")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "consolidated 1 brands"))
	assert.FileExists(t, filepath.Join(dataDir, "consolidated", "final_consolidated_plans_20250301_090000.json"))
}

func TestRunSkippingScrapeAndLLM(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("PLANBOARD_DATA_ROOT_DIR", t.TempDir())
	t.Setenv("PLANBOARD_SCRAPER_CATALOG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	sc := scraper.Scenario{Name: "1_line_mobile_only", Lines: 1, URL: "https://example.test/telus"}
	_, stripped := scraper.Paths(dataDir, "telus")
	writeFile(t, filepath.Join(stripped, "telus_1_line_mobile_only_stripped_20250301_090000.html"), strippedPage("telus", sc))

	out, err := execute(t, "--data-dir", dataDir, "run", "--carriers", "telus", "--skip-scrape", "--skip-llm")
	require.NoError(t, err)
	assert.Contains(t, out, "1/1 carriers succeeded, 0 scenarios extracted")
	assert.Contains(t, out, "telus      ok")

	logs, err := filepath.Glob(filepath.Join(dataDir, "pipeline_runs", "pipeline_log_*.json"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	summaries, err := filepath.Glob(filepath.Join(dataDir, "all_carriers_extraction_NO_LLM_*.json"))
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}
