// Package property reads Android system properties.
package property

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var propLog = logf.Log.WithName("property")

// Store reads system properties.
type Store interface {
	// Get returns the property value, or "" when it is not set.
	Get(ctx context.Context, key string) (string, error)
}

// GetBool reads a boolean property using Android's parsing rules.
// Unset or unrecognised values yield def.
func GetBool(ctx context.Context, s Store, key string, def bool) bool {
	v, err := s.Get(ctx, key)
	if err != nil {
		propLog.V(1).Info("failed to read property", "key", key, "error", err.Error())
		return def
	}
	switch v {
	case "1", "y", "yes", "on", "true":
		return true
	case "0", "n", "no", "off", "false":
		return false
	default:
		return def
	}
}

// WaitFor blocks until key equals value, polling every interval. It returns
// the context's error if ctx ends first.
func WaitFor(ctx context.Context, s Store, key, value string, interval time.Duration) error {
	propLog.Info("waiting for property", "key", key, "value", value)
	err := wait.PollUntilContextCancel(ctx, interval, true, func(ctx context.Context) (bool, error) {
		v, err := s.Get(ctx, key)
		if err != nil {
			propLog.V(1).Info("failed to read property, retrying", "key", key, "error", err.Error())
			return false, nil
		}
		return v == value, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for %s=%s: %w", key, value, err)
	}
	return nil
}

// ExecStore reads properties through the getprop tool.
type ExecStore struct {
	// Binary is the getprop executable. Defaults to "getprop".
	Binary string
}

// NewExecStore creates a getprop-backed store.
func NewExecStore() *ExecStore {
	return &ExecStore{Binary: "getprop"}
}

func (s *ExecStore) Get(ctx context.Context, key string) (string, error) {
	bin := s.Binary
	if bin == "" {
		bin = "getprop"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, key)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", bin, key, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// MapStore is an in-memory Store.
type MapStore struct {
	mu    sync.RWMutex
	props map[string]string
}

// NewMapStore creates a store seeded with props.
func NewMapStore(props map[string]string) *MapStore {
	m := &MapStore{props: make(map[string]string, len(props))}
	for k, v := range props {
		m.props[k] = v
	}
	return m
}

func (m *MapStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.props[key], nil
}

// Set updates a property.
func (m *MapStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[key] = value
}
