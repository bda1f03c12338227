package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyrup-ai/action-items-sub005/internal/config"
	"github.com/cyrup-ai/action-items-sub005/internal/event"
)

// writeScriptPlugin lays one script extension into the plugin root.
func writeScriptPlugin(t *testing.T, root, id, src string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"version": "1.0.0",
		"capabilities": ["search"]
	}`, id, id)
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.js"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T, pluginRoot string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Plugins.Paths = []string{pluginRoot}
	cfg.Plugins.RefreshInterval = 0
	cfg.DataDir = t.TempDir()
	return cfg
}

func startedApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

const echoSearch = `
function search(payload) {
	var req = JSON.parse(payload);
	return JSON.stringify({
		items: [{ title: "echo " + req.query, score: 0.8 }]
	});
}
`

func TestStartDiscoversAndSearches(t *testing.T) {
	root := t.TempDir()
	writeScriptPlugin(t, root, "echo", echoSearch)

	a := startedApp(t, testConfig(t, root))

	if got := a.Registry().Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}

	res, err := a.Search(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Title != "echo hello" {
		t.Errorf("Items = %+v", res.Items)
	}
	if res.Partial() {
		t.Errorf("Partial() = true, failed = %v", res.Failed)
	}
}

func TestBrokenPluginSkipped(t *testing.T) {
	root := t.TempDir()
	writeScriptPlugin(t, root, "echo", echoSearch)
	writeScriptPlugin(t, root, "bad", `var e = eval("1"); function search(p) { return "{}"; }`)

	var failures []event.PluginLoadFailed

	cfg := testConfig(t, root)
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = a.Events().Subscribe(event.TopicPluginLoadFailed, func(ctx context.Context, e any) error {
		failures = append(failures, e.(event.PluginLoadFailed))
		return nil
	})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = a.Stop(context.Background()) }()

	if got := a.Registry().Count(); got != 1 {
		t.Errorf("Count() = %d, want 1 (broken plugin skipped)", got)
	}
	if len(failures) != 1 {
		t.Errorf("load failure events = %d, want 1", len(failures))
	}
}

func TestUnregisterRemovesFromSearch(t *testing.T) {
	root := t.TempDir()
	writeScriptPlugin(t, root, "echo", echoSearch)

	a := startedApp(t, testConfig(t, root))

	if err := a.Registry().Unregister(context.Background(), "echo"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}

	res, err := a.Search(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Items) != 0 || res.Partial() {
		t.Errorf("result after unregister = %+v", res)
	}
}

func TestExecuteAction(t *testing.T) {
	root := t.TempDir()
	writeScriptPlugin(t, root, "acts", echoSearch+`
function execute_action(payload) {
	var req = JSON.parse(payload);
	return JSON.stringify({ executed: req.action_id });
}
`)

	a := startedApp(t, testConfig(t, root))

	out, err := a.ExecuteAction(context.Background(), "acts", []byte(`{"action_id": "open"}`))
	if err != nil {
		t.Fatalf("ExecuteAction() error = %v", err)
	}
	if string(out) != `{"executed":"open"}` {
		t.Errorf("result = %s", out)
	}
}

func TestReloadPlugin(t *testing.T) {
	root := t.TempDir()
	writeScriptPlugin(t, root, "echo", echoSearch)

	a := startedApp(t, testConfig(t, root))

	writeScriptPlugin(t, root, "echo", `
function search(payload) {
	return JSON.stringify({ items: [{ title: "reloaded", score: 1 }] });
}
`)
	if err := a.ReloadPlugin(context.Background(), "echo"); err != nil {
		t.Fatalf("ReloadPlugin() error = %v", err)
	}

	res, err := a.Search(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].Title != "reloaded" {
		t.Errorf("Items = %+v", res.Items)
	}
}

func TestReloadUnknownPlugin(t *testing.T) {
	a := startedApp(t, testConfig(t, t.TempDir()))
	if err := a.ReloadPlugin(context.Background(), "ghost"); err == nil {
		t.Error("ReloadPlugin() accepted an unknown id")
	}
}
