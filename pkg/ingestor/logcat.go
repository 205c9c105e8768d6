package ingestor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// stderrLimit caps how much of a process's standard error is kept for the
// log message emitted on close.
const stderrLimit = 4096

// CommandSource runs a program and reads its standard output, such as logcat.
type CommandSource struct {
	// SourceName is returned by Name.
	SourceName string

	// Binary is the program to run.
	Binary string

	// Args are passed to Binary.
	Args []string
}

// NewLogcatSource creates the "logcat" source.
func NewLogcatSource() *CommandSource {
	return &CommandSource{SourceName: "logcat", Binary: "logcat"}
}

func (c *CommandSource) Name() string { return c.SourceName }

// Open starts the program. Closing the returned reader terminates it.
func (c *CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe for %s: %w", c.Binary, err)
	}
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.Binary, err)
	}
	ingestLog.Info("started log process", "source", c.SourceName, "binary", c.Binary, "pid", cmd.Process.Pid)

	return &processReader{
		ReadCloser: stdout,
		cmd:        cmd,
		stderr:     stderr,
		name:       c.SourceName,
	}, nil
}

// processReader terminates and reaps its process on Close.
type processReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *limitedBuffer
	name   string

	once sync.Once
	err  error
}

func (p *processReader) Close() error {
	p.once.Do(func() {
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			ingestLog.V(1).Info("signalling log process", "source", p.name, "error", err.Error())
		}
		// Wait closes the stdout pipe.
		waitErr := p.cmd.Wait()
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			p.err = waitErr
		}
		if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
			ingestLog.Info("log process wrote to standard error", "source", p.name, "stderr", msg)
		}
	})
	return p.err
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
