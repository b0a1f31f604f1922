package cargo

import (
	"sync"

	"github.com/naoina/toml"
)

// Package is the [package] section of a manifest.
type Package struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Edition string   `toml:"edition"`
	Authors []string `toml:"authors"`
}

// Dependency is one [dependencies] entry.
type Dependency struct {
	Version  string
	Features []string
}

// Manifest is a minimal Cargo.toml: one package and its dependencies. The
// dependency table is safe for concurrent use; repair workers add crates
// while translation is still running.
type Manifest struct {
	Package Package

	mu   sync.Mutex
	deps map[string]Dependency
}

func NewManifest(pkg Package) *Manifest {
	return &Manifest{Package: pkg, deps: make(map[string]Dependency)}
}

func (m *Manifest) SetDependency(name string, d Dependency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[name] = d
}

func (m *Manifest) Dependency(name string) (Dependency, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deps[name]
	return d, ok
}

// Dependencies returns a snapshot of the dependency table.
func (m *Manifest) Dependencies() map[string]Dependency {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Dependency, len(m.deps))
	for name, d := range m.deps {
		out[name] = d
	}
	return out
}

type depTable struct {
	Version  string   `toml:"version"`
	Features []string `toml:"features"`
}

type manifestDoc struct {
	Package      Package                `toml:"package"`
	Dependencies map[string]interface{} `toml:"dependencies"`
}

// Encode renders the manifest as TOML. Dependencies without features shrink
// to the plain version string form.
func (m *Manifest) Encode() ([]byte, error) {
	doc := manifestDoc{Package: m.Package, Dependencies: map[string]interface{}{}}
	for name, d := range m.Dependencies() {
		if len(d.Features) == 0 {
			doc.Dependencies[name] = d.Version
			continue
		}
		doc.Dependencies[name] = depTable{Version: d.Version, Features: d.Features}
	}
	return toml.Marshal(doc)
}
