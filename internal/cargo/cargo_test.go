package cargo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessagesSkipsNonJSON(t *testing.T) {
	out := []byte(`   Compiling demo v0.1.0
{"reason":"compiler-message","message":{"message":"boom","level":"error"}}
not json at all
{"reason":"build-finished","success":false}
`)
	messages := DecodeMessages(out)
	require.Len(t, messages, 2)
	assert.Equal(t, "compiler-message", messages[0].Reason)
	assert.Equal(t, "boom", messages[0].Message.Message)
	assert.Equal(t, "build-finished", messages[1].Reason)
	assert.False(t, messages[1].Success)
}

func TestAllSpansUnfoldsExpansions(t *testing.T) {
	d := Diagnostic{
		Spans: []Span{{
			FileName:  "src/lib.rs",
			LineStart: 10,
			LineEnd:   10,
			Expansion: &Expansion{
				Span:        Span{FileName: "src/lib.rs", LineStart: 4, LineEnd: 4},
				DefSiteSpan: &Span{FileName: "src/lib.rs", ByteStart: 120, LineStart: 1, LineEnd: 2},
			},
		}},
		Children: []Diagnostic{{
			Spans: []Span{{FileName: "src/lib.rs", LineStart: 30, LineEnd: 30}},
		}},
	}
	spans := d.AllSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, 1, spans[0].LineStart) // definition site first
	assert.Equal(t, 4, spans[1].LineStart) // then the call site
	assert.Equal(t, 30, spans[2].LineStart)
}

func TestAllSpansSkipsSyntheticDefSite(t *testing.T) {
	d := Diagnostic{
		Spans: []Span{{
			LineStart: 5,
			LineEnd:   5,
			Expansion: &Expansion{
				Span:        Span{LineStart: 2, LineEnd: 2},
				DefSiteSpan: &Span{ByteStart: 0, LineStart: 1, LineEnd: 1},
			},
		}},
	}
	spans := d.AllSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, 2, spans[0].LineStart)
}

func TestImportErrorCrate(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"unresolved import `serde::Deserialize`", "serde"},
		{"unresolved imports `rand`, `rand::Rng`", "rand"},
		{"failed to resolve: use of unresolved module or unlinked crate `libc`", "libc"},
		{"failed to resolve: could not find `Regex` in the crate root, `regex` is not a crate or module", "regex"},
		{"mismatched types", ""},
	}
	for _, tc := range cases {
		got := importErrorCrate(&Diagnostic{Message: tc.message})
		assert.Equal(t, tc.want, got, "message %q", tc.message)
	}
}

func TestFetchVersionPrefersStable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/serde", r.URL.Path)
		fmt.Fprint(w, `{"crate":{"name":"serde","default_version":"0.0.0","max_stable_version":"1.0.219","max_version":"2.0.0-alpha"}}`)
	}))
	defer server.Close()

	r := NewResolver(server.Client(), nil)
	r.baseURL = server.URL
	name, version, err := r.FetchVersion(context.Background(), "serde")
	require.NoError(t, err)
	assert.Equal(t, "serde", name)
	assert.Equal(t, "1.0.219", version)
}

func TestFetchVersionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	r := NewResolver(server.Client(), nil)
	r.baseURL = server.URL
	_, _, err := r.FetchVersion(context.Background(), "no-such-crate")
	require.Error(t, err)
}

func TestAddFeaturesEnablesGatedItems(t *testing.T) {
	m := NewManifest(Package{Name: "demo", Version: "0.1.0", Edition: "2024"})
	m.SetDependency("tokio", Dependency{Version: "1.44.0"})

	messages := []BuildMessage{{
		Reason: "compiler-message",
		Message: &Diagnostic{
			Message: "cannot find function `spawn`",
			Level:   "error",
			Children: []Diagnostic{
				{
					Message: "found an item that was configured out",
					Spans: []Span{{
						FileName: "/home/u/.cargo/registry/src/index.crates.io-6f17d22bba15001f/tokio-1.44.0/src/task/spawn.rs",
					}},
				},
				{Message: "the item is gated behind the `rt` feature"},
			},
		},
	}}

	r := NewResolver(nil, nil)
	require.NoError(t, r.addFeatures(context.Background(), m, messages))
	dep, ok := m.Dependency("tokio")
	require.True(t, ok)
	assert.Equal(t, []string{"rt"}, dep.Features)

	// A second pass must not duplicate the feature.
	require.NoError(t, r.addFeatures(context.Background(), m, messages))
	dep, _ = m.Dependency("tokio")
	assert.Equal(t, []string{"rt"}, dep.Features)
}

func TestManifestEncode(t *testing.T) {
	m := NewManifest(Package{
		Name:    "demo",
		Version: "0.1.0",
		Edition: "2024",
		Authors: []string{"Your Name <youremail@example.com>"},
	})
	m.SetDependency("serde", Dependency{Version: "1.0.219"})
	m.SetDependency("tokio", Dependency{Version: "1.44.0", Features: []string{"rt", "macros"}})

	out, err := m.Encode()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, `name = "demo"`)
	assert.Contains(t, text, `edition = "2024"`)
	assert.Contains(t, text, `serde = "1.0.219"`)
	assert.Contains(t, text, `version = "1.44.0"`)
	assert.Contains(t, text, `"rt"`)
}

func TestDependenciesSnapshotIsolated(t *testing.T) {
	m := NewManifest(Package{Name: "demo"})
	m.SetDependency("serde", Dependency{Version: "1.0.0"})
	snap := m.Dependencies()
	snap["serde"] = Dependency{Version: "9.9.9"}
	dep, _ := m.Dependency("serde")
	assert.Equal(t, "1.0.0", dep.Version)
}
