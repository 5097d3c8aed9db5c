// Package battery reads the device power state for mood and behavior
// decisions.
package battery

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Status is one power reading.
type Status struct {
	Level    int  // percent, 0..100
	Charging bool
	Present  bool // false when the host has no battery at all
}

// Source provides power readings. Implementations must be safe for use
// from the heartbeat tick.
type Source interface {
	Read() (Status, error)
}

// SysfsSource reads Linux power-supply entries, the native path on the
// e-ink device.
type SysfsSource struct {
	root string
}

// NewSysfsSource probes /sys/class/power_supply.
func NewSysfsSource() *SysfsSource {
	return &SysfsSource{root: "/sys/class/power_supply"}
}

func (s *SysfsSource) Read() (Status, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return Status{}, fmt.Errorf("probe power supplies: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "BAT") {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		level, err := readInt(filepath.Join(dir, "capacity"))
		if err != nil {
			continue
		}
		state, _ := readString(filepath.Join(dir, "status"))
		return Status{
			Level:    level,
			Charging: state == "Charging" || state == "Full",
			Present:  true,
		}, nil
	}
	return Status{Present: false}, nil
}

func readInt(path string) (int, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// StaticSource is a fixed or scriptable reading, for hosts without a
// battery and for tests.
type StaticSource struct {
	mu     sync.Mutex
	status Status
}

// NewStaticSource starts with the given reading.
func NewStaticSource(level int, charging bool) *StaticSource {
	return &StaticSource{status: Status{Level: level, Charging: charging, Present: true}}
}

func (s *StaticSource) Read() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// Set replaces the reading.
func (s *StaticSource) Set(level int, charging bool) {
	s.mu.Lock()
	s.status = Status{Level: level, Charging: charging, Present: true}
	s.mu.Unlock()
}
