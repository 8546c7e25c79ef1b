package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ramonehamilton/wfmarket-companion/internal/reports"
)

// fakeMarket serves a tiny marketplace with one prime set.
func fakeMarket(t *testing.T) *httptest.Server {
	t.Helper()

	responses := map[string]string{
		"/items": `{"payload":{"items":[
			{"id":"1","url_name":"ash_prime_set","item_name":"Ash Prime Set"},
			{"id":"2","url_name":"ash_prime_blueprint","item_name":"Ash Prime Blueprint"},
			{"id":"3","url_name":"ash_prime_chassis","item_name":"Ash Prime Chassis"}
		]}}`,
		"/items/ash_prime_set": `{"payload":{"item":{"id":"1","items_in_set":[
			{"id":"1","url_name":"ash_prime_set","set_root":true,"tags":["prime","set","warframe"],"en":{"item_name":"Ash Prime Set"}},
			{"id":"2","url_name":"ash_prime_blueprint","quantity_for_set":1,"tags":["prime","blueprint"],"en":{"item_name":"Ash Prime Blueprint"}},
			{"id":"3","url_name":"ash_prime_chassis","quantity_for_set":1,"tags":["prime","component"],"en":{"item_name":"Ash Prime Chassis"}}
		]}}}`,
		"/items/ash_prime_blueprint": `{"payload":{"item":{"id":"2","items_in_set":[
			{"id":"2","url_name":"ash_prime_blueprint","tags":["prime","blueprint"],"en":{"item_name":"Ash Prime Blueprint"}}
		]}}}`,
		"/items/ash_prime_chassis": `{"payload":{"item":{"id":"3","items_in_set":[
			{"id":"3","url_name":"ash_prime_chassis","tags":["prime","component"],"en":{"item_name":"Ash Prime Chassis"}}
		]}}}`,
		"/items/ash_prime_set/orders":       `{"payload":{"orders":[{"platinum":100,"order_type":"sell","visible":true,"user":{"status":"ingame"}}]}}`,
		"/items/ash_prime_blueprint/orders": `{"payload":{"orders":[{"platinum":30,"order_type":"sell","visible":true,"user":{"status":"ingame"}}]}}`,
		"/items/ash_prime_chassis/orders":   `{"payload":{"orders":[{"platinum":45,"order_type":"sell","visible":true,"user":{"status":"ingame"}}]}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/statistics") {
			_, _ = w.Write([]byte(`{"payload":{"statistics_closed":{"48hours":[]}}}`))
			return
		}
		body, ok := responses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

type harness struct {
	dir    string
	apiURL string
	env    map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{
		dir:    dir,
		apiURL: fakeMarket(t).URL,
		env: map[string]string{
			"WFM_RATE_DELAY": "0s",
			"WFM_CACHE_DIR":  filepath.Join(dir, "cache"),
		},
	}
}

func (h *harness) lookup(key string) (string, bool) {
	v, ok := h.env[key]
	return v, ok
}

func (h *harness) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	global := []string{
		"-config", filepath.Join(h.dir, "config.toml"),
		"-env-file", filepath.Join(h.dir, ".env"),
		"-api-url", h.apiURL,
	}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append(global, args...), &stdout, &stderr, h.lookup)
	return code, stdout.String(), stderr.String()
}

func TestRun_SetsJSON(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(h.dir, "sets.json")

	code, stdout, stderr := h.run(t, "sets", "-out", out, "-skip-statistics", "-progress=false")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Saved: "+out) {
		t.Errorf("stdout = %q", stdout)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var rows []reports.SetRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	row := rows[0]
	if row.Category != reports.CategoryWarframes {
		t.Errorf("category = %q", row.Category)
	}
	if row.PartsSumLive == nil || *row.PartsSumLive != 75 {
		t.Errorf("parts sum = %v, want 75", row.PartsSumLive)
	}
	if row.DeltaLive == nil || *row.DeltaLive != 25 {
		t.Errorf("delta = %v, want 25", row.DeltaLive)
	}
	if row.DeltaPctLive == nil || *row.DeltaPctLive != 33.33 {
		t.Errorf("delta %% = %v, want 33.33", row.DeltaPctLive)
	}
}

func TestRun_SetsXLSXAndCacheStats(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(h.dir, "sets.xlsx")
	chart := filepath.Join(h.dir, "sets.html")

	code, _, stderr := h.run(t, "-ui-language", "ru", "sets", "-out", out, "-chart", chart, "-progress=false")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	for _, p := range []string{out, chart} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not written: %v", p, err)
		}
	}

	code, stdout, _ := h.run(t, "cache", "stats")
	if code != exitOK {
		t.Fatalf("cache stats exit code = %d", code)
	}
	if !strings.Contains(stdout, "Backend:  file") || strings.Contains(stdout, "Entries:  0\n") {
		t.Errorf("cache stats = %q", stdout)
	}

	code, stdout, _ = h.run(t, "cache", "clear")
	if code != exitOK || !strings.Contains(stdout, "Cache cleared") {
		t.Fatalf("cache clear = %d %q", code, stdout)
	}
	_, stdout, _ = h.run(t, "cache", "stats")
	if !strings.Contains(stdout, "Entries:  0\n") {
		t.Errorf("cache stats after clear = %q", stdout)
	}
}

func TestRun_NoResults(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(h.dir, "endo.xlsx")

	code, stdout, stderr := h.run(t, "-ui-language", "ru", "endo", "-out", out, "-progress=false")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Ничего подходящего не найдено.") {
		t.Errorf("stdout = %q", stdout)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no file should be written without results")
	}
}

func TestRun_All(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(h.dir, "all.json")

	code, _, stderr := h.run(t, "all", "-out", out, "-progress=false", "-sets-skip-statistics")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if _, ok := doc["sets"]; !ok {
		t.Errorf("combined output lacks sets: %s", data)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, exitUsage},
		{"unknown command", []string{"trade"}, exitUsage},
		{"unknown flag", []string{"sets", "-bogus"}, exitUsage},
		{"zero top-n", []string{"sets", "-top-n", "0"}, exitUsage},
		{"negative top-n", []string{"sets", "-top-n", "-3"}, exitUsage},
		{"negative limit", []string{"mods", "-limit-items", "-1"}, exitUsage},
		{"negative set limit", []string{"sets", "-limit-sets", "-2"}, exitUsage},
		{"combined zero top-n", []string{"all", "-mods-top-n", "0"}, exitUsage},
		{"combined negative limit", []string{"all", "-endo-limit-items", "-5"}, exitUsage},
		{"bad extension", []string{"endo", "-out", "endo.txt"}, exitUsage},
		{"combined csv", []string{"all", "-out", "all.csv"}, exitUsage},
		{"invalid platform", []string{"-platform", "gamecube", "sets"}, exitUsage},
		{"bad cache command", []string{"cache", "shrink"}, exitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := h.run(t, tt.args...)
			if code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestRun_TopNCheckedAfterParsing(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(h.dir, "sets.xlsx")

	code, stdout, stderr := h.run(t, "-ui-language", "ru", "sets", "-out", out, "-top-n", "-3", "-progress=false")
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, "live_price_top_n должно быть положительным") {
		t.Errorf("stderr = %q", stderr)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing", stdout)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no report should be written for an invalid top-n")
	}
}

func TestRun_InvalidEnvironment(t *testing.T) {
	h := newHarness(t)
	h.env["WFM_CACHE_ENABLED"] = "maybe"

	code, _, stderr := h.run(t, "sets")
	if code != exitUsage {
		t.Errorf("exit code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, "WFM_CACHE_ENABLED") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_ListingFailure(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	h.apiURL = server.URL

	code, _, _ := h.run(t, "mods", "-out", filepath.Join(h.dir, "mods.xlsx"), "-progress=false")
	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
}

func TestRun_VersionAndInitConfig(t *testing.T) {
	h := newHarness(t)

	code, stdout, _ := h.run(t, "version")
	if code != exitOK || !strings.HasPrefix(stdout, "wfmarket ") {
		t.Errorf("version = %d %q", code, stdout)
	}

	code, _, _ = h.run(t, "init-config")
	if code != exitOK {
		t.Fatalf("init-config exit code = %d", code)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "config.toml")); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	code, _, _ = h.run(t, "init-config")
	if code != exitFailure {
		t.Errorf("second init-config exit code = %d, want %d", code, exitFailure)
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, "en")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.report(reports.Progress{Stage: reports.StageScan, Done: 1, Total: 10, Remaining: 4500 * time.Millisecond})
	p.report(reports.Progress{Stage: reports.StageScan, Done: 2, Total: 10, Remaining: 4 * time.Second})
	now = now.Add(time.Second)
	p.report(reports.Progress{Stage: reports.StageScan, Done: 9, Total: 10, Remaining: 500 * time.Millisecond})
	p.report(reports.Progress{Stage: reports.StageScan, Done: 10, Total: 10})

	want := []string{
		"[Scanning items] 1/10 • Remaining 4.5 s",
		"[Scanning items] 9/10 • Remaining less than a second",
		"[Scanning items] 10/10 • done",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("lines = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestProgressPrinter_Russian(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, "ru")
	p.report(reports.Progress{Stage: reports.StageCompute, Done: 3, Total: 3})

	if got := strings.TrimSpace(buf.String()); got != "[Расчёт цен] 3/3 • готово" {
		t.Errorf("line = %q", got)
	}
}
