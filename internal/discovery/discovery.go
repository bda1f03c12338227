// Package discovery walks configured extension directories and produces
// normalized manifests for every recognizable plugin package. One
// malformed package never fails the scan; it is skipped with a logged
// reason.
package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cyrup-ai/action-items-sub005/internal/manifest"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

// Location records where a discovered package lives and which runtime
// should load it.
type Location struct {
	// Path is the package path: a library or bytecode file for native
	// and sandboxed plugins, a project directory for script extensions.
	Path string

	// Kind selects the runtime adapter.
	Kind runtime.Kind
}

// Discovered pairs a normalized manifest with its package location.
type Discovered struct {
	Manifest *manifest.Manifest
	Location Location
}

// nativeExts are the dynamic-library extensions recognized per platform.
var nativeExts = map[string]bool{
	".so":    true,
	".dylib": true,
	".dll":   true,
}

// Scanner discovers plugin packages under a set of root directories.
type Scanner struct {
	paths  []string
	logger *slog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithPaths sets the plugin search paths.
func WithPaths(paths ...string) ScannerOption {
	return func(s *Scanner) {
		s.paths = paths
	}
}

// WithLogger sets the logger used for skipped-package diagnostics.
func WithLogger(logger *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner creates a scanner over the default plugin paths.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{
		paths:  DefaultPluginPaths(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultPluginPaths returns the default plugin search paths.
func DefaultPluginPaths() []string {
	paths := make([]string, 0, 2)

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "action-items", "plugins"))
		paths = append(paths, filepath.Join(home, ".local", "share", "action-items", "plugins"))
	}

	return paths
}

// Paths returns the configured search paths.
func (s *Scanner) Paths() []string {
	return s.paths
}

// Scan discovers all plugin packages across the search paths. Results
// are sorted by plugin id; when two paths provide the same id, the
// first path wins.
func (s *Scanner) Scan() []*Discovered {
	byID := make(map[string]*Discovered)

	for _, root := range s.paths {
		s.scanRoot(root, byID)
	}

	out := make([]*Discovered, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest.ID < out[j].Manifest.ID
	})
	return out
}

// scanRoot discovers packages in a single directory.
func (s *Scanner) scanRoot(root string, byID map[string]*Discovered) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("skipping plugin path", "path", root, "error", err)
		}
		return
	}

	for _, entry := range entries {
		full := filepath.Join(root, entry.Name())

		var d *Discovered
		var err error
		switch {
		case entry.IsDir():
			d, err = s.inspectProject(full)
		case nativeExts[filepath.Ext(entry.Name())]:
			d, err = s.inspectFile(full, runtime.KindNative)
		case filepath.Ext(entry.Name()) == ".wasm":
			d, err = s.inspectFile(full, runtime.KindSandboxed)
		default:
			continue
		}

		if err != nil {
			s.logger.Warn("skipping malformed plugin package", "path", full, "error", err)
			continue
		}
		if d == nil {
			continue // not a plugin package
		}

		if _, exists := byID[d.Manifest.ID]; exists {
			continue // first path wins
		}
		byID[d.Manifest.ID] = d
	}
}

// inspectFile normalizes a single-file plugin package (native library or
// bytecode file). A sibling <name>.json manifest is honored; without one
// a minimal manifest is synthesized from the filename.
func (s *Scanner) inspectFile(path string, kind runtime.Kind) (*Discovered, error) {
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	if _, err := os.Stat(sidecar); err == nil {
		m, err := manifest.Load(sidecar)
		if err != nil {
			return nil, err
		}
		return &Discovered{Manifest: m, Location: Location{Path: path, Kind: kind}}, nil
	}

	return &Discovered{
		Manifest: manifest.Synthesize(path),
		Location: Location{Path: path, Kind: kind},
	}, nil
}

// inspectProject normalizes a script-extension project directory. The
// directory must contain either a manifest.json or a package.json; a
// directory with neither is not a plugin package.
func (s *Scanner) inspectProject(dir string) (*Discovered, error) {
	manifestPath := filepath.Join(dir, "manifest.json")
	if _, err := os.Stat(manifestPath); err == nil {
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return nil, err
		}
		return &Discovered{Manifest: m, Location: Location{Path: dir, Kind: runtime.KindScript}}, nil
	}

	packagePath := filepath.Join(dir, "package.json")
	if _, err := os.Stat(packagePath); err == nil {
		m, err := manifestFromPackageJSON(packagePath)
		if err != nil {
			return nil, err
		}
		return &Discovered{Manifest: m, Location: Location{Path: dir, Kind: runtime.KindScript}}, nil
	}

	return nil, nil
}
