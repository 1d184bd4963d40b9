package testutil

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
)

// ReadUntilLine reads lines from r until matcher returns true or the
// context expires, and returns the matching line. After returning, the rest
// of r is drained in the background so writers never block; that goroutine
// exits once r reaches EOF or fails.
func ReadUntilLine(ctx context.Context, t testing.TB, r io.Reader, matcher func(line string) bool) (string, error) {
	t.Helper()

	var (
		lines   = make(chan string)
		readErr = make(chan error, 1)
		stop    = make(chan struct{})
	)
	defer close(stop)
	go func() {
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- strings.TrimRight(line, "\r\n"):
				case <-stop:
					_, _ = io.Copy(io.Discard, reader)
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case line := <-lines:
			if matcher(line) {
				return line, nil
			}
			t.Logf("read: %s", line)
		case err := <-readErr:
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
