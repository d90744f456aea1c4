package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTOML = `
[printer]
serial_device = "/dev/ttyUSB0"
baud = 115200
max_z = 170.0
default_lift = 5.0
default_up_speed = 3.0
default_down_speed = 3.0
pause_lift = 5.0

[gcode]
boot = "G90"
home = "G28"
move = "G0 Z{z} F{speed}"
move_sync = "MOVE COMPLETE"
move_timeout = "5s"
status_check = "M115"
status_desired = "ready"

[display]
framebuffer_device = "/dev/fb0"
bit_depth = [8]
screen_width = 1620
screen_height = 2560
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "odyssey.toml")
	if err := os.WriteFile(path, []byte(sampleTOML), 0o644); err != nil {
		t.Fatalf("writing sample config: %v", err)
	}
	return path
}

func TestLoadConvertsMillimetersToMicrons(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Printer.MaxZMicrons != 170000 {
		t.Fatalf("MaxZMicrons = %d, want 170000", cfg.Printer.MaxZMicrons)
	}
	if cfg.Printer.DefaultLiftMicrons != 5000 {
		t.Fatalf("DefaultLiftMicrons = %d, want 5000", cfg.Printer.DefaultLiftMicrons)
	}
}

func TestLoadRejectsMissingSerialDevice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odyssey.toml")
	if err := os.WriteFile(path, []byte("[display]\nframebuffer_device = \"/dev/fb0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing serial_device")
	}
}

func TestLoadRejectsUnalignedBitDepth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odyssey.toml")
	content := `
[printer]
serial_device = "/dev/ttyUSB0"

[display]
framebuffer_device = "/dev/fb0"
bit_depth = [5, 6]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for bit_depth not summing to a multiple of 8")
	}
}
