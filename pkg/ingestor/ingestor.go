package ingestor

import (
	"bufio"
	"context"
	"io"

	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var ingestLog = logf.Log.WithName("ingestor")

// Source is a producer of log text: the kernel ring buffer, logcat, ...
type Source interface {
	// Name identifies the source in file names and metrics ("dmesg", "logcat").
	Name() string

	// Open starts the source. Reads block until more text is available.
	// Closing the returned reader releases the source.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// newLineScanner creates a bufio.Scanner configured for log lines (up to 1MB).
func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return s
}

// Lines reads rc line by line and emits each line on the returned channel.
// The channel is closed when the source ends or ctx is cancelled. rc is
// closed exactly once; cancelling ctx closes it straight away so that a read
// stuck waiting for more output returns instead of holding up shutdown.
func Lines(ctx context.Context, rc io.ReadCloser) <-chan string {
	ch := make(chan string, 256)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		if err := rc.Close(); err != nil {
			ingestLog.V(1).Info("error closing log source", "error", err.Error())
		}
	}()

	go func() {
		defer close(ch)
		defer close(done)

		scanner := newLineScanner(rc)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ingestLog.Error(err, "error reading log source")
		}
	}()

	return ch
}
