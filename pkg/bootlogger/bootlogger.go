package bootlogger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/utils/clock"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/android-debug-tools/bootlogger/pkg/capture"
	"github.com/android-debug-tools/bootlogger/pkg/filter"
	"github.com/android-debug-tools/bootlogger/pkg/ingestor"
	"github.com/android-debug-tools/bootlogger/pkg/kconfig"
	"github.com/android-debug-tools/bootlogger/pkg/metrics"
	"github.com/android-debug-tools/bootlogger/pkg/property"
)

// Properties consulted by the logger.
const (
	PropLogdKernel    = "ro.logd.kernel"
	PropBootCompleted = "sys.boot_completed"
	PropLoggerEnabled = "persist.ext.logdump.enabled"
)

// DevKmsg receives the boot time line so it lands in the kernel log too.
const DevKmsg = "/dev/kmsg"

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Runner wires log sources, filters and property waits together.
type Runner struct {
	Config Config

	// Props reads system properties.
	Props property.Store

	// Dmesg and Logcat are the two log sources.
	Dmesg  ingestor.Source
	Logcat ingestor.Source

	// ReadKernelConfig loads the kernel config used to detect audit support.
	ReadKernelConfig func(path string) (kconfig.Config, error)

	// RecordBootTime runs once boot completes in the default mode.
	RecordBootTime func(ctx context.Context)

	// Clock stamps output file names.
	Clock clock.PassiveClock
}

// NewRunner creates a Runner backed by the real device.
func NewRunner(config Config) *Runner {
	return &Runner{
		Config:           config,
		Props:            property.NewExecStore(),
		Dmesg:            ingestor.NewKmsgSource(),
		Logcat:           ingestor.NewLogcatSource(),
		ReadKernelConfig: kconfig.Read,
		RecordBootTime:   func(context.Context) { recordBootTime(DevKmsg) },
		Clock:            clock.RealClock{},
	}
}

// Start initializes logging and runs the logger until boot completes or ctx
// is cancelled.
func Start(ctx context.Context, buildInfo BuildInfo, config Config) error {
	logger := zap.New(zap.UseDevMode(config.LogLevel > 0))
	logf.SetLogger(logger)

	setupLog := logf.Log.WithName("setup")
	setupLog.Info("starting bootlogger",
		"version", buildInfo.Version,
		"commit", buildInfo.Commit,
		"date", buildInfo.Date,
	)

	if err := config.Validate(); err != nil {
		return err
	}

	setUmask(0o022)

	if config.MetricsBindAddress != "" {
		go serveMetrics(ctx, setupLog, config.MetricsBindAddress)
	}

	return NewRunner(config).Run(ctx)
}

// Run performs one logging session.
func (r *Runner) Run(ctx context.Context) error {
	log := logf.Log.WithName("bootlogger")
	outDir := r.Config.OutputDir()
	log.Info("logger starting", "logDir", outDir, "systemMode", r.Config.SystemMode)

	hasAudit := r.detectAudit(log)

	if err := resetDir(log, outDir); err != nil {
		return err
	}

	opts := r.Config.FilterOptions()
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var group capture.Group

	// With ro.logd.kernel set, logd already copies kernel messages into
	// logcat; reading them twice would duplicate (and race) the output.
	if !property.GetBool(ctx, r.Props, PropLogdKernel, false) {
		var names []string
		if hasAudit {
			names = []string{filter.AVCName, filter.RuleName}
		}
		filters, err := filter.NewAll(names, opts)
		if err != nil {
			return err
		}
		group.Go(taskCtx, r.newTask(r.Dmesg, outDir, filters))
	} else {
		log.Info("kernel messages are forwarded by logd, not reading dmesg")
	}

	filters, err := filter.NewAll([]string{filter.AVCName, filter.RuleName, filter.PropertyName}, opts)
	if err != nil {
		cancel()
		_ = group.Wait()
		return err
	}
	group.Go(taskCtx, r.newTask(r.Logcat, outDir, filters))

	interval := r.Config.PollInterval.Duration
	if r.Config.SystemMode {
		err = property.WaitFor(ctx, r.Props, PropLoggerEnabled, "false", interval)
	} else {
		err = property.WaitFor(ctx, r.Props, PropBootCompleted, "1", interval)
		if err == nil && r.RecordBootTime != nil {
			r.RecordBootTime(ctx)
		}
	}
	if err != nil {
		log.Info("stopped waiting", "reason", err.Error())
	}

	log.Info("woke up, waiting for capture tasks to finish")
	cancel()
	if err := group.Wait(); err != nil {
		log.Error(err, "some capture tasks failed")
	}
	log.Info("logger stopped")
	return nil
}

func (r *Runner) newTask(src ingestor.Source, dir string, filters []filter.Filter) *capture.Task {
	task := capture.NewTask(src, dir, filters...)
	if r.Clock != nil {
		task.Clock = r.Clock
	}
	return task
}

// detectAudit reports whether the kernel was built with CONFIG_AUDIT=y, in
// which case kernel messages carry AVC denials worth filtering.
func (r *Runner) detectAudit(log logr.Logger) bool {
	if r.ReadKernelConfig == nil {
		return false
	}
	cfg, err := r.ReadKernelConfig(r.Config.KernelConfigPath)
	if err != nil {
		log.V(1).Info("kernel config unavailable", "path", r.Config.KernelConfigPath, "error", err.Error())
		return false
	}
	if cfg.Get("CONFIG_AUDIT") == kconfig.BuiltIn {
		log.Info("detected CONFIG_AUDIT=y in kernel configuration")
		return true
	}
	return false
}

// resetDir deletes path with everything in it and creates it again.
func resetDir(log logr.Logger, path string) error {
	log.Info("deleting everything in log directory", "path", path)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove directory %q: %w", path, err)
	}
	log.Info("recreating log directory", "path", path)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", path, err)
	}
	return nil
}

// bootTimeMessage formats the boot duration the way it appears in dmesg.
// Minutes count the whole duration and do not wrap at an hour.
func bootTimeMessage(uptime time.Duration) string {
	secs := int64(uptime / time.Second)
	return fmt.Sprintf("Boot completed in %02dm%02ds", secs/60, secs%60)
}

// recordBootTime logs the system uptime and echoes it into the kernel log.
func recordBootTime(kmsgPath string) {
	log := logf.Log.WithName("bootlogger")
	uptime, err := systemUptime()
	if err != nil {
		log.V(1).Info("could not read uptime", "error", err.Error())
		return
	}
	metrics.BootDurationSeconds.Set(uptime.Seconds())

	msg := bootTimeMessage(uptime)
	log.Info(msg)

	f, err := os.OpenFile(kmsgPath, os.O_WRONLY, 0)
	if err != nil {
		log.V(1).Info("could not open kernel log", "path", kmsgPath, "error", err.Error())
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(msg); err != nil {
		log.V(1).Info("could not write kernel log", "path", kmsgPath, "error", err.Error())
	}
}

// serveMetrics exposes the metrics registry until ctx is cancelled.
func serveMetrics(ctx context.Context, log logr.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error(err, "metrics server shutdown error")
		}
	}()

	log.Info("serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err, "metrics server error")
	}
}
