package ingestor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewLineScanner(t *testing.T) {
	s := newLineScanner(strings.NewReader("test line\n"))
	if !s.Scan() {
		t.Fatal("expected successful scan")
	}
	if s.Text() != "test line" {
		t.Errorf("got %q, want %q", s.Text(), "test line")
	}
}

func TestNewLineScanner_LongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	s := newLineScanner(strings.NewReader(long + "\n"))
	if !s.Scan() {
		t.Fatalf("scan failed: %v", s.Err())
	}
	if len(s.Text()) != len(long) {
		t.Errorf("got %d bytes, want %d", len(s.Text()), len(long))
	}
}

type trackingCloser struct {
	io.Reader
	closed atomic.Int32
}

func (c *trackingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func collect(ch <-chan string) []string {
	var out []string
	for l := range ch {
		out = append(out, l)
	}
	return out
}

func TestLines_ReadsUntilEOF(t *testing.T) {
	rc := &trackingCloser{Reader: strings.NewReader("one\ntwo\n\nthree")}
	got := collect(Lines(context.Background(), rc))

	want := []string{"one", "two", "", "three"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rc.closed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := rc.closed.Load(); n != 1 {
		t.Errorf("Close called %d times, want 1", n)
	}
}

// A stalled source must not block shutdown.
func TestLines_CancelUnblocksStalledRead(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	ch := Lines(ctx, pr)

	if _, err := pw.Write([]byte("first\n")); err != nil {
		t.Fatal(err)
	}
	if got := <-ch; got != "first" {
		t.Fatalf("got %q, want first", got)
	}

	cancel()

	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel; read still blocked")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kmsg")
	if err := os.WriteFile(path, []byte("<6>[    0.000000] Booting Linux\n<3>[    1.0] avc: denied\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &FileSource{SourceName: "dmesg", Path: path}
	if src.Name() != "dmesg" {
		t.Errorf("Name = %q", src.Name())
	}
	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := collect(Lines(context.Background(), rc))
	if len(got) != 2 || !strings.Contains(got[1], "avc") {
		t.Errorf("got %q", got)
	}
}

func TestFileSource_Missing(t *testing.T) {
	src := &FileSource{SourceName: "dmesg", Path: filepath.Join(t.TempDir(), "nope")}
	if _, err := src.Open(context.Background()); err == nil {
		t.Error("expected error opening missing file")
	}
}

func TestNewKmsgSource(t *testing.T) {
	src := NewKmsgSource()
	if src.Name() != "dmesg" || src.Path != KmsgPath {
		t.Errorf("unexpected kmsg source %+v", src)
	}
	lc := NewLogcatSource()
	if lc.Name() != "logcat" || lc.Binary != "logcat" {
		t.Errorf("unexpected logcat source %+v", lc)
	}
}

func TestCommandSource_Output(t *testing.T) {
	src := &CommandSource{
		SourceName: "logcat",
		Binary:     "/bin/sh",
		Args:       []string{"-c", "echo hello; echo world; echo oops >&2"},
	}
	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := collect(Lines(context.Background(), rc))
	if strings.Join(got, ",") != "hello,world" {
		t.Errorf("got %q", got)
	}
}

func TestCommandSource_CancelTerminatesProcess(t *testing.T) {
	src := &CommandSource{
		SourceName: "logcat",
		Binary:     "/bin/sh",
		Args:       []string{"-c", "echo ready; exec sleep 60"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	rc, err := src.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ch := Lines(ctx, rc)
	if got := <-ch; got != "ready" {
		t.Fatalf("got %q, want ready", got)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		collect(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("process output channel not closed after cancel")
	}
}

func TestCommandSource_MissingBinary(t *testing.T) {
	src := &CommandSource{SourceName: "logcat", Binary: filepath.Join(t.TempDir(), "nope")}
	if _, err := src.Open(context.Background()); err == nil {
		t.Error("expected error starting missing binary")
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	_, _ = b.Write([]byte("gh"))
	if b.String() != "abcd" {
		t.Errorf("String = %q, want abcd", b.String())
	}
}
