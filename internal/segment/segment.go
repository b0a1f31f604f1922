// Package segment slices a C or C++ project into translation units and
// recovers the dependency edges between them.
package segment

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"oxidize/internal/ctxlog"
	"oxidize/internal/safeio"
)

// Unit is one schedulable chunk of source text. Uses and UsedBy carry the
// dependency graph between units; both lists are deterministic.
type Unit struct {
	ID     int
	Path   string
	Text   string
	Uses   []*Unit
	UsedBy []*Unit
}

func (u *Unit) String() string {
	return fmt.Sprintf("unit#%d(%s)", u.ID, u.Path)
}

// A Segmenter turns a project root into translation units.
type Segmenter interface {
	Segment(ctx context.Context) ([]*Unit, error)
}

var sourceExts = map[string]bool{
	".c":   true,
	".h":   true,
	".cc":  true,
	".cpp": true,
	".cxx": true,
	".hpp": true,
	".hh":  true,
}

var reInclude = regexp.MustCompile(`(?m)^\s*#\s*include\s*"([^"]+)"`)

// FileGraphSegmenter makes each source file a unit and derives edges from
// quoted #include directives that resolve to another file in the project.
// System includes in angle brackets are ignored.
type FileGraphSegmenter struct {
	fs *safeio.SafeFS
}

func NewFileGraphSegmenter(fs *safeio.SafeFS) *FileGraphSegmenter {
	return &FileGraphSegmenter{fs: fs}
}

func (s *FileGraphSegmenter) Segment(ctx context.Context) ([]*Unit, error) {
	log := ctxlog.FromContext(ctx)

	paths, err := s.collect(".")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	units := make([]*Unit, 0, len(paths))
	byPath := make(map[string]*Unit, len(paths))
	for i, p := range paths {
		data, err := s.fs.SafeReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		u := &Unit{ID: i, Path: p, Text: string(data)}
		units = append(units, u)
		byPath[p] = u
	}

	for _, u := range units {
		for _, m := range reInclude.FindAllStringSubmatch(u.Text, -1) {
			dep := s.resolveInclude(u.Path, m[1], byPath)
			if dep == nil {
				log.Debug("unresolved include", "unit", u.Path, "include", m[1])
				continue
			}
			if dep == u {
				continue
			}
			u.Uses = appendUnique(u.Uses, dep)
			dep.UsedBy = appendUnique(dep.UsedBy, u)
		}
	}

	log.Info("segmented project", "units", len(units))
	return units, nil
}

func (s *FileGraphSegmenter) collect(dir string) ([]string, error) {
	entries, err := s.fs.SafeReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		rel := filepath.ToSlash(filepath.Join(dir, name))
		if e.IsDir() {
			sub, err := s.collect(rel)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if sourceExts[strings.ToLower(filepath.Ext(name))] {
			out = append(out, rel)
		}
	}
	return out, nil
}

// resolveInclude tries the include path relative to the including file first,
// then relative to the project root.
func (s *FileGraphSegmenter) resolveInclude(from, inc string, byPath map[string]*Unit) *Unit {
	rel := path.Clean(path.Join(path.Dir(from), inc))
	if u, ok := byPath[rel]; ok {
		return u
	}
	if u, ok := byPath[path.Clean(inc)]; ok {
		return u
	}
	return nil
}

func appendUnique(list []*Unit, u *Unit) []*Unit {
	for _, v := range list {
		if v == u {
			return list
		}
	}
	return append(list, u)
}
