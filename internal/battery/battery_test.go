package battery

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSysfsBattery(t *testing.T, root, name, capacity, status string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "capacity"), []byte(capacity+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSysfsSource(t *testing.T) {
	tests := []struct {
		name     string
		capacity string
		status   string
		want     Status
	}{
		{"discharging", "42", "Discharging", Status{Level: 42, Charging: false, Present: true}},
		{"charging", "80", "Charging", Status{Level: 80, Charging: true, Present: true}},
		{"full counts as charging", "100", "Full", Status{Level: 100, Charging: true, Present: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeSysfsBattery(t, root, "BAT0", tt.capacity, tt.status)
			src := &SysfsSource{root: root}
			got, err := src.Read()
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got != tt.want {
				t.Errorf("Read = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSysfsSourceNoBattery(t *testing.T) {
	root := t.TempDir()
	// An AC adapter entry should be skipped.
	if err := os.MkdirAll(filepath.Join(root, "AC"), 0o755); err != nil {
		t.Fatal(err)
	}
	src := &SysfsSource{root: root}
	got, err := src.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Present {
		t.Errorf("Read = %+v, want absent battery", got)
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(50, false)
	got, _ := src.Read()
	if got.Level != 50 || got.Charging {
		t.Errorf("Read = %+v", got)
	}
	src.Set(90, true)
	got, _ = src.Read()
	if got.Level != 90 || !got.Charging {
		t.Errorf("Read after Set = %+v", got)
	}
}
