package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestScanRecognizesThreeShapes(t *testing.T) {
	root := t.TempDir()

	// Native library with sidecar manifest.
	writeFile(t, filepath.Join(root, "calc.so"), "\x7fELF fake")
	writeFile(t, filepath.Join(root, "calc.json"), `{
		"id": "calc", "version": "1.0.0", "capabilities": ["search"]
	}`)

	// Bare bytecode file, manifest synthesized.
	writeFile(t, filepath.Join(root, "Notes Search.wasm"), "\x00asm fake")

	// Script extension project with package.json.
	writeFile(t, filepath.Join(root, "emoji", "package.json"), `{
		"name": "emoji", "title": "Emoji Picker", "version": "2.1.0",
		"commands": [{"name": "pick", "title": "Pick Emoji", "mode": "view"}]
	}`)

	s := NewScanner(WithPaths(root))
	found := s.Scan()

	if len(found) != 3 {
		t.Fatalf("Scan() found %d packages, want 3", len(found))
	}

	// Sorted by id: calc, emoji, notes-search.
	if found[0].Manifest.ID != "calc" || found[0].Location.Kind != runtime.KindNative {
		t.Errorf("found[0] = %s/%s", found[0].Manifest.ID, found[0].Location.Kind)
	}
	if found[1].Manifest.ID != "emoji" || found[1].Location.Kind != runtime.KindScript {
		t.Errorf("found[1] = %s/%s", found[1].Manifest.ID, found[1].Location.Kind)
	}
	if found[2].Manifest.ID != "notes-search" || found[2].Location.Kind != runtime.KindSandboxed {
		t.Errorf("found[2] = %s/%s", found[2].Manifest.ID, found[2].Location.Kind)
	}
}

func TestScanSynthesizesManifestForBareFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "clip.so"), "fake")

	found := NewScanner(WithPaths(root)).Scan()
	if len(found) != 1 {
		t.Fatalf("Scan() found %d, want 1", len(found))
	}
	m := found[0].Manifest
	if m.ID != "clip" {
		t.Errorf("ID = %q, want clip", m.ID)
	}
	if !m.HasCapability(capability.CapabilitySearch) {
		t.Error("synthesized manifest lacks search capability")
	}
	if m.Description == "" {
		t.Error("synthesized manifest has no description")
	}
}

func TestScanSkipsMalformedPackage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bad.wasm"), "fake")
	writeFile(t, filepath.Join(root, "bad.json"), `{broken`)
	writeFile(t, filepath.Join(root, "good.wasm"), "fake")

	found := NewScanner(WithPaths(root)).Scan()
	if len(found) != 1 {
		t.Fatalf("Scan() found %d, want 1 (malformed skipped)", len(found))
	}
	if found[0].Manifest.ID != "good" {
		t.Errorf("ID = %q, want good", found[0].Manifest.ID)
	}
}

func TestScanFirstPathWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(first, "dup.wasm"), "fake")
	writeFile(t, filepath.Join(first, "dup.json"), `{"id": "dup", "version": "1.0.0"}`)
	writeFile(t, filepath.Join(second, "dup.wasm"), "fake")
	writeFile(t, filepath.Join(second, "dup.json"), `{"id": "dup", "version": "2.0.0"}`)

	found := NewScanner(WithPaths(first, second)).Scan()
	if len(found) != 1 {
		t.Fatalf("Scan() found %d, want 1", len(found))
	}
	if found[0].Manifest.Version != "1.0.0" {
		t.Errorf("Version = %q, want the first path's 1.0.0", found[0].Manifest.Version)
	}
}

func TestScanAcceptsDigitLeadingName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2048", "package.json"), `{"name": "2048", "version": "1.0.0"}`)
	writeFile(t, filepath.Join(root, "2048", "index.js"), `function search(p) { return "{}"; }`)

	found := NewScanner(WithPaths(root)).Scan()
	if len(found) != 1 {
		t.Fatalf("Scan() found %d, want 1 (digit-leading name accepted)", len(found))
	}
	if found[0].Manifest.ID != "2048" {
		t.Errorf("ID = %q, want 2048", found[0].Manifest.ID)
	}
}

func TestScanMissingRootIsNotAnError(t *testing.T) {
	found := NewScanner(WithPaths(filepath.Join(t.TempDir(), "nope"))).Scan()
	if len(found) != 0 {
		t.Errorf("Scan() = %v, want empty", found)
	}
}

func TestScanIgnoresUnrelatedFilesAndDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "hello")
	writeFile(t, filepath.Join(root, "notes", "todo.txt"), "no manifest here")

	found := NewScanner(WithPaths(root)).Scan()
	if len(found) != 0 {
		t.Errorf("Scan() = %d packages, want 0", len(found))
	}
}

func TestManifestFromPackageJSON(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "package.json")
	writeFile(t, path, `{
		"name": "My Extension",
		"title": "My Extension",
		"version": "0.3.1",
		"description": "Does things",
		"author": "dev",
		"commands": [
			{"name": "run", "title": "Run", "mode": "no-view"}
		],
		"preferences": [
			{"name": "token", "type": "password", "required": true},
			{"name": "fast", "type": "checkbox", "default": true}
		]
	}`)

	m, err := manifestFromPackageJSON(path)
	if err != nil {
		t.Fatalf("manifestFromPackageJSON() error = %v", err)
	}
	if m.ID != "my-extension" {
		t.Errorf("ID = %q, want my-extension", m.ID)
	}
	if len(m.Commands) != 1 || m.Commands[0].ID != "my-extension.run" {
		t.Errorf("Commands = %v", m.Commands)
	}
	if len(m.Configuration) != 2 {
		t.Fatalf("Configuration = %v", m.Configuration)
	}
	if m.Configuration[0].Type != "string" {
		t.Errorf("preference type = %q, want string", m.Configuration[0].Type)
	}
	if m.Configuration[1].Type != "boolean" {
		t.Errorf("preference type = %q, want boolean", m.Configuration[1].Type)
	}
	if !m.HasCapability(capability.CapabilitySearch) {
		t.Error("script extension should default to search capability")
	}
}

func TestManifestFromPackageJSONUnknownCapability(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "package.json")
	writeFile(t, path, `{"name": "x", "capabilities": ["teleport"]}`)

	if _, err := manifestFromPackageJSON(path); err == nil {
		t.Error("expected error for unknown capability")
	}
}
