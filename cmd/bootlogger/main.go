package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/android-debug-tools/bootlogger/pkg/bootlogger"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("bootlogger %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if len(os.Args) != 3 {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [log directory] [directory name]\n", os.Args[0])
		os.Exit(1)
	}
	if os.Args[1] == "" {
		_, _ = fmt.Fprintf(os.Stderr, "%s: Invalid empty string for log directory\n", os.Args[0])
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	buildInfo := bootlogger.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	config, err := loadConfig(os.Args[1], os.Args[2])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := bootlogger.Start(ctx, buildInfo, config); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the configuration from defaults, an optional YAML file
// named by BOOTLOGGER_CONFIG, environment variables and the arguments.
func loadConfig(logDir, dirName string) (bootlogger.Config, error) {
	config := bootlogger.DefaultConfig()
	if path := os.Getenv("BOOTLOGGER_CONFIG"); path != "" {
		if err := bootlogger.LoadFile(path, &config); err != nil {
			return config, err
		}
	}

	config.LogDir = logDir
	config.DirName = dirName
	// Presence alone switches system mode on.
	_, config.SystemMode = os.LookupEnv("LOGGER_MODE_SYSTEM")
	config.LogLevel = envInt("LOG_LEVEL", config.LogLevel)
	config.MetricsBindAddress = envString("METRICS_BIND_ADDRESS", config.MetricsBindAddress)
	config.PollInterval.Duration = envDuration("POLL_INTERVAL", config.PollInterval.Duration)
	config.KernelConfigPath = envString("KERNEL_CONFIG_PATH", config.KernelConfigPath)
	return config, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return defaultVal
}
