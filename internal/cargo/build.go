package cargo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"oxidize/internal/ctxlog"
	"oxidize/internal/safeio"
)

// WriteProject lays out a crate under root: the manifest at Cargo.toml and
// the program at src/lib.rs.
func WriteProject(fs *safeio.SafeFS, m *Manifest, code string) error {
	encoded, err := m.Encode()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := fs.SafeWriteFile("Cargo.toml", encoded); err != nil {
		return err
	}
	return fs.SafeWriteFile(filepath.Join("src", "lib.rs"), []byte(code))
}

// Runner invokes cargo on scratch copies of the translated program.
type Runner struct {
	cargoBin string
}

func NewRunner(cargoBin string) *Runner {
	if cargoBin == "" {
		cargoBin = "cargo"
	}
	return &Runner{cargoBin: cargoBin}
}

var reAbortedDueTo = regexp.MustCompile(`^error: aborting due to \d+ previous errors?`)

// Validate builds the program in a temporary crate and returns its error
// diagnostics. The trailing abort summary is dropped. A non-zero exit from
// cargo is not an error here; the diagnostics are the result.
func (r *Runner) Validate(ctx context.Context, m *Manifest, code string) ([]Diagnostic, error) {
	messages, err := r.buildScratch(ctx, m, code)
	if err != nil {
		return nil, err
	}
	var diags []Diagnostic
	for _, msg := range messages {
		if msg.Reason != "compiler-message" || msg.Message == nil {
			continue
		}
		if msg.Message.Level != "error" {
			continue
		}
		if reAbortedDueTo.MatchString(msg.Message.Message) {
			continue
		}
		diags = append(diags, *msg.Message)
	}
	return diags, nil
}

func (r *Runner) buildScratch(ctx context.Context, m *Manifest, code string) ([]BuildMessage, error) {
	dir, err := os.MkdirTemp("", "oxidize-build-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	fs, err := safeio.NewSafeFS(dir)
	if err != nil {
		return nil, err
	}
	if err := WriteProject(fs, m, code); err != nil {
		return nil, err
	}
	return r.build(ctx, dir)
}

func (r *Runner) build(ctx context.Context, dir string) ([]BuildMessage, error) {
	cmd := exec.CommandContext(ctx, r.cargoBin,
		"build", "--message-format", "json",
		"--manifest-path", filepath.Join(dir, "Cargo.toml"))
	out, err := cmd.Output()
	if err != nil {
		// cargo exits non-zero whenever the build fails; the message
		// stream on stdout is still complete.
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("run cargo: %w", err)
		}
		ctxlog.FromContext(ctx).Debug("cargo build failed", "dir", dir)
	}
	return DecodeMessages(out), nil
}
