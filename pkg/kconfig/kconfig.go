// Package kconfig reads the running kernel's build configuration.
package kconfig

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultPath is where the kernel exposes its configuration when built with
// CONFIG_IKCONFIG_PROC.
const DefaultPath = "/proc/config.gz"

// Value classifies a config symbol's setting.
type Value int

const (
	Unknown Value = iota
	BuiltIn       // =y
	String        // =""
	Int           // =1
	Module        // =m
	Unset         // =n or "is not set"
)

func (v Value) String() string {
	switch v {
	case BuiltIn:
		return "y"
	case String:
		return "string"
	case Int:
		return "int"
	case Module:
		return "m"
	case Unset:
		return "n"
	default:
		return "unknown"
	}
}

// Config maps config symbols (CONFIG_AUDIT, ...) to their values.
type Config map[string]Value

// Get returns the value of a symbol, Unknown when absent.
func (c Config) Get(symbol string) Value {
	return c[symbol]
}

// Read opens a gzip-compressed config file and parses it.
func Read(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()

	cfg, err := Parse(zr)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads a plain-text kernel config.
func Parse(r io.Reader) (Config, error) {
	cfg := Config{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			// "# CONFIG_FOO is not set"
			rest := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if sym, ok := strings.CutSuffix(rest, " is not set"); ok && strings.HasPrefix(sym, "CONFIG_") {
				cfg[sym] = Unset
			}
			continue
		}

		sym, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		cfg[sym] = classify(val)
	}
	return cfg, s.Err()
}

func classify(val string) Value {
	switch val {
	case "y":
		return BuiltIn
	case "m":
		return Module
	case "n":
		return Unset
	}
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		return String
	}
	if _, err := strconv.ParseInt(val, 0, 64); err == nil {
		return Int
	}
	return Unknown
}
