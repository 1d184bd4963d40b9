package clitest

import (
	"context"
	"strings"
	"testing"

	"github.com/coder/serpent"
	"github.com/searchd/analytics/cli"
)

// New creates a CLI invocation for the given arguments. Output goes to the
// test log unless the caller replaces Stdout or Stderr.
func New(t testing.TB, args ...string) *serpent.Invocation {
	var root cli.RootCmd
	cmd := root.Command()
	HandlersOK(t, cmd)

	inv := cmd.Invoke(args...)
	inv.Environ = serpent.Environ{}
	inv.Stdout = &logWriter{t: t, prefix: "stdout: "}
	inv.Stderr = &logWriter{t: t, prefix: "stderr: "}
	return inv
}

// Start runs inv in the background and returns a channel that receives
// the result once it exits.
func Start(ctx context.Context, inv *serpent.Invocation) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- inv.WithContext(ctx).Run()
	}()
	return done
}

type logWriter struct {
	t      testing.TB
	prefix string
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(w.prefix + strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}
