package cargo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"oxidize/internal/ctxlog"
)

const defaultRegistryURL = "https://crates.io/api/v1/crates"

// Resolver guesses missing crate dependencies from build diagnostics and
// looks them up on the registry. It is advisory: resolution failures are
// logged, never fatal.
type Resolver struct {
	client  *http.Client
	baseURL string
	runner  *Runner
}

func NewResolver(client *http.Client, runner *Runner) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{client: client, baseURL: defaultRegistryURL, runner: runner}
}

var importErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile("^unresolved imports? `(\\S+)`"),
	regexp.MustCompile("^failed to resolve: use of unresolved modules? or unlinked crates? `(\\S+)`"),
	regexp.MustCompile("^failed to resolve: .* `(\\S+)` is not a crate or module"),
}

// importErrorCrate extracts the crate name a diagnostic complains about, or
// "" when the diagnostic is not an unresolved import.
func importErrorCrate(d *Diagnostic) string {
	for _, re := range importErrorPatterns {
		if m := re.FindStringSubmatch(d.Message); m != nil {
			path := m[1]
			if i := strings.Index(path, "::"); i >= 0 {
				return path[:i]
			}
			return path
		}
	}
	return ""
}

type registryCrate struct {
	Crate struct {
		Name             string `json:"name"`
		DefaultVersion   string `json:"default_version"`
		MaxStableVersion string `json:"max_stable_version"`
		MaxVersion       string `json:"max_version"`
	} `json:"crate"`
}

// FetchVersion asks the registry for a crate and returns its canonical name
// and a usable version number.
func (r *Resolver) FetchVersion(ctx context.Context, name string) (string, string, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+name, nil)
		if err != nil {
			return "", "", err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return "", "", fmt.Errorf("registry returned %d for %s", resp.StatusCode, name)
		}
		var data registryCrate
		err = json.NewDecoder(resp.Body).Decode(&data)
		resp.Body.Close()
		if err != nil {
			return "", "", err
		}
		crate := data.Crate
		if crate.Name == "" {
			crate.Name = name
		}
		for _, version := range []string{crate.DefaultVersion, crate.MaxStableVersion, crate.MaxVersion} {
			if version == "" || version == "0.0.0" {
				continue
			}
			return crate.Name, version, nil
		}
		return "", "", fmt.Errorf("no usable version for %s", name)
	}
	return "", "", lastErr
}

var (
	reRegistryPath = regexp.MustCompile(`.*/\.cargo/registry/src/.*/([\w-]+)-\d+\.\d+\.\d+/.*`)
	reFeatureGate  = regexp.MustCompile("^the item is gated behind the `(.*)` feature")
)

// Refresh grows the manifest's dependency table until the program's imports
// resolve: a first build reveals missing crates, a second reveals features
// the used items are gated behind.
func (r *Resolver) Refresh(ctx context.Context, m *Manifest, code string) error {
	log := ctxlog.FromContext(ctx)

	messages, err := r.runner.buildScratch(ctx, m, code)
	if err != nil {
		return err
	}
	changed := false
	for _, msg := range messages {
		if msg.Reason != "compiler-message" || msg.Message == nil {
			continue
		}
		guess := importErrorCrate(msg.Message)
		if guess == "" {
			continue
		}
		name, version, err := r.FetchVersion(ctx, guess)
		if err != nil {
			log.Warn("crate lookup failed", "crate", guess, "error", err)
			continue
		}
		log.Info("adding dependency", "crate", name, "version", version)
		m.SetDependency(name, Dependency{Version: version})
		changed = true
	}
	if !changed {
		return r.addFeatures(ctx, m, messages)
	}

	messages, err = r.runner.buildScratch(ctx, m, code)
	if err != nil {
		return err
	}
	return r.addFeatures(ctx, m, messages)
}

// addFeatures enables crate features reported as configured out. The gated
// item's span names the crate through its registry path, and the sibling
// note names the feature.
func (r *Resolver) addFeatures(ctx context.Context, m *Manifest, messages []BuildMessage) error {
	log := ctxlog.FromContext(ctx)
	for _, msg := range messages {
		if msg.Reason != "compiler-message" || msg.Message == nil {
			continue
		}
		children := msg.Message.Children
		for i, child := range children {
			if child.Message != "found an item that was configured out" {
				continue
			}
			if len(child.Spans) == 0 {
				continue
			}
			pathMatch := reRegistryPath.FindStringSubmatch(child.Spans[0].FileName)
			if pathMatch == nil {
				continue
			}
			crate := pathMatch[1]
			if i+1 >= len(children) {
				continue
			}
			featureMatch := reFeatureGate.FindStringSubmatch(children[i+1].Message)
			if featureMatch == nil {
				continue
			}
			feature := featureMatch[1]
			dep, ok := m.Dependency(crate)
			if !ok {
				continue
			}
			if !containsString(dep.Features, feature) {
				dep.Features = append(dep.Features, feature)
				m.SetDependency(crate, dep)
				log.Info("enabling feature", "crate", crate, "feature", feature)
			}
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
