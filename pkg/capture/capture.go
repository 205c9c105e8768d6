// Package capture copies a log source to disk and writes the filtered
// sub-logs derived from it once the source ends.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/utils/clock"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/android-debug-tools/bootlogger/pkg/filter"
	"github.com/android-debug-tools/bootlogger/pkg/ingestor"
	"github.com/android-debug-tools/bootlogger/pkg/metrics"
)

var captureLog = logf.Log.WithName("capture")

// timestampLayout is used in every file name, e.g. logcat-2024-01-31-12_00_00.log.
const timestampLayout = "2006-01-02-15_04_05"

// Task captures one log source.
type Task struct {
	// Source is the log producer.
	Source ingestor.Source

	// Filters select lines for the derived files.
	Filters []filter.Filter

	// Dir is the output directory.
	Dir string

	// Clock stamps file names. Defaults to the real clock.
	Clock clock.PassiveClock
}

// NewTask creates a capture task writing into dir.
func NewTask(src ingestor.Source, dir string, filters ...filter.Filter) *Task {
	return &Task{
		Source:  src,
		Filters: filters,
		Dir:     dir,
		Clock:   clock.RealClock{},
	}
}

func (t *Task) clock() clock.PassiveClock {
	if t.Clock == nil {
		return clock.RealClock{}
	}
	return t.Clock
}

// LogPath returns the raw log path for a capture started at the current time.
func (t *Task) LogPath() string {
	return filepath.Join(t.Dir, fmt.Sprintf("%s-%s.log", t.Source.Name(), t.clock().Now().Format(timestampLayout)))
}

// FilterPath returns the output path of the named filter at the current time.
func (t *Task) FilterPath(filterName string) string {
	return filepath.Join(t.Dir, fmt.Sprintf("%s.%s-%s.log", t.Source.Name(), filterName, t.clock().Now().Format(timestampLayout)))
}

// Run copies the source to a timestamped file until ctx is cancelled or the
// source ends, then writes one file per filter that matched anything. An
// empty capture leaves no files behind.
func (t *Task) Run(ctx context.Context) error {
	name := t.Source.Name()
	log := captureLog.WithValues("source", name)

	// The source is opened only once the raw log exists.
	logPath := t.LogPath()
	f, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("opening %s for logging: %w", logPath, err)
	}

	rc, err := t.Source.Open(ctx)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(logPath)
		return fmt.Errorf("opening source %s: %w", name, err)
	}
	lines := ingestor.Lines(ctx, rc)
	log.Info("capturing", "path", logPath, "filters", len(t.Filters))

	chain := filter.NewChain(name, t.Filters...)
	w := bufio.NewWriter(f)
	var count int64
	var writeErr error
	for line := range lines {
		chain.Feed(line)
		count++
		if writeErr != nil {
			continue
		}
		if _, err := w.WriteString(line); err != nil {
			writeErr = err
			continue
		}
		writeErr = w.WriteByte('\n')
	}
	metrics.LinesCapturedTotal.WithLabelValues(name).Add(float64(count))

	if err := w.Flush(); err != nil && writeErr == nil {
		writeErr = err
	}
	if err := f.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		log.Error(writeErr, "error writing raw log", "path", logPath)
	}

	if info, err := os.Stat(logPath); err == nil && info.Size() == 0 {
		if err := os.Remove(logPath); err != nil {
			log.V(1).Info("could not remove empty log", "path", logPath, "error", err.Error())
		}
		log.Info("no log entries found")
		return nil
	}

	var errs []error
	for _, res := range chain.Results() {
		path := t.FilterPath(res.Filter)
		if err := writeFileAtomic(path, []byte(res.Content)); err != nil {
			log.Error(err, "failed to write filtered log", "filter", res.Filter, "path", path)
			errs = append(errs, fmt.Errorf("writing %s: %w", path, err))
			continue
		}
		metrics.FilesWrittenTotal.WithLabelValues(name, res.Filter).Inc()
		if res.Filter == filter.RuleName {
			metrics.RulesGeneratedTotal.WithLabelValues(name).Add(float64(countLines(res.Content)))
		}
		log.Info("wrote filtered log", "filter", res.Filter, "path", path, "lines", res.Lines)
	}

	log.Info("capture finished", "lines", count)
	return errors.Join(errs...)
}

func countLines(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
		}
	}
	return n
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over path, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Group runs capture tasks concurrently.
type Group struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// Go starts task in its own goroutine. A failing or panicking task only
// stops itself; its error is reported by Wait.
func (g *Group) Go(ctx context.Context, task *Task) {
	name := task.Source.Name()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("capture task %s panicked: %v", name, r)
				utilruntime.HandleErrorWithLogger(captureLog, err, "capture task crashed", "source", name)
				g.fail(name, err)
			}
		}()

		if err := task.Run(ctx); err != nil {
			captureLog.Error(err, "capture task failed", "source", name)
			g.fail(name, err)
		}
	}()
}

func (g *Group) fail(name string, err error) {
	metrics.CaptureErrorsTotal.WithLabelValues(name).Inc()
	g.mu.Lock()
	g.errs = append(g.errs, err)
	g.mu.Unlock()
}

// Wait blocks until every task has finished and returns their joined errors.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}
