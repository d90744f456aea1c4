// Package config assembles the configuration surface (spec.md §6) from a
// viper source into the plain structs each core package's constructor takes
// directly. Only this package and the cmd/odyssey wiring layer read the
// configuration file; of the core packages, only printfile/sl1 imports
// viper, to parse a job's own config.ini.
//
// Grounded on the hardware-config loading idiom of
// other_examples/ea5aef8e_multiverse-hardware-labs-dastard__data_source.go.go
// (register defaults, bind a file, unmarshal into nested structs) and on the
// field shapes of original_source/src/configuration.rs and settings.rs.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// Printer holds the printer section of the configuration surface.
type Printer struct {
	SerialDevice             string
	Baud                     int
	MaxZMicrons              uint32
	DefaultLiftMicrons       uint32
	DefaultUpSpeedMMPerSec   float64
	DefaultDownSpeedMMPerSec float64
	DefaultWaitBeforeExpose  time.Duration
	DefaultWaitAfterExpose   time.Duration
	PauseLiftMicrons         uint32
}

// Gcode holds the gcode section: every template string plus the move and
// status synchronization parameters.
type Gcode struct {
	Boot       string
	Shutdown   string
	Home       string
	Move       string
	PrintStart string
	PrintEnd   string
	StartLayer string
	CureStart  string
	CureEnd    string

	MoveSync    string
	MoveTimeout time.Duration

	StatusCheck   string
	StatusDesired string
	StatusTimeout time.Duration
}

// Display holds the display section.
type Display struct {
	FramebufferDevice string
	BitDepth          []int
	ScreenWidth       int
	ScreenHeight      int
}

// API holds the api section. Unused by the core; carried only so a single
// configuration file can describe the whole process.
type API struct {
	ListenAddress string
}

// Configuration is the complete, immutable-after-load configuration surface.
type Configuration struct {
	Printer Printer
	Gcode   Gcode
	Display Display
	API     API
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("printer.baud", 115200)
	v.SetDefault("printer.max_z", 170.0)
	v.SetDefault("printer.default_lift", 5.0)
	v.SetDefault("printer.default_up_speed", 3.0)
	v.SetDefault("printer.default_down_speed", 3.0)
	v.SetDefault("printer.default_wait_before_exposure", "1s")
	v.SetDefault("printer.default_wait_after_exposure", "0.5s")
	v.SetDefault("printer.pause_lift", 5.0)

	v.SetDefault("gcode.move_sync", "MOVE COMPLETE")
	v.SetDefault("gcode.move_timeout", "5s")
	v.SetDefault("gcode.status_check", "M115")
	v.SetDefault("gcode.status_desired", "ready")
	v.SetDefault("gcode.status_timeout", "5s")

	v.SetDefault("display.bit_depth", []int{8})
	v.SetDefault("api.listen_address", ":8080")
}

// Load reads and validates a configuration file at path. The file format is
// inferred by viper from its extension (TOML, YAML, JSON, and INI are all
// accepted; the project ships a TOML example).
func Load(path string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := &Configuration{
		Printer: Printer{
			SerialDevice:             v.GetString("printer.serial_device"),
			Baud:                     v.GetInt("printer.baud"),
			MaxZMicrons:              millimetersToMicrons(v.GetFloat64("printer.max_z")),
			DefaultLiftMicrons:       millimetersToMicrons(v.GetFloat64("printer.default_lift")),
			DefaultUpSpeedMMPerSec:   v.GetFloat64("printer.default_up_speed"),
			DefaultDownSpeedMMPerSec: v.GetFloat64("printer.default_down_speed"),
			DefaultWaitBeforeExpose:  v.GetDuration("printer.default_wait_before_exposure"),
			DefaultWaitAfterExpose:   v.GetDuration("printer.default_wait_after_exposure"),
			PauseLiftMicrons:         millimetersToMicrons(v.GetFloat64("printer.pause_lift")),
		},
		Gcode: Gcode{
			Boot:          v.GetString("gcode.boot"),
			Shutdown:      v.GetString("gcode.shutdown"),
			Home:          v.GetString("gcode.home"),
			Move:          v.GetString("gcode.move"),
			PrintStart:    v.GetString("gcode.print_start"),
			PrintEnd:      v.GetString("gcode.print_end"),
			StartLayer:    v.GetString("gcode.start_layer"),
			CureStart:     v.GetString("gcode.cure_start"),
			CureEnd:       v.GetString("gcode.cure_end"),
			MoveSync:      v.GetString("gcode.move_sync"),
			MoveTimeout:   v.GetDuration("gcode.move_timeout"),
			StatusCheck:   v.GetString("gcode.status_check"),
			StatusDesired: v.GetString("gcode.status_desired"),
			StatusTimeout: v.GetDuration("gcode.status_timeout"),
		},
		Display: Display{
			FramebufferDevice: v.GetString("display.framebuffer_device"),
			BitDepth:          v.GetIntSlice("display.bit_depth"),
			ScreenWidth:       v.GetInt("display.screen_width"),
			ScreenHeight:      v.GetInt("display.screen_height"),
		},
		API: API{
			ListenAddress: v.GetString("api.listen_address"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Configuration) error {
	if cfg.Printer.SerialDevice == "" {
		return fmt.Errorf("config: printer.serial_device is required")
	}
	if cfg.Display.FramebufferDevice == "" {
		return fmt.Errorf("config: display.framebuffer_device is required")
	}
	if len(cfg.Display.BitDepth) == 0 {
		return fmt.Errorf("config: display.bit_depth must not be empty")
	}
	sum := 0
	for _, b := range cfg.Display.BitDepth {
		if b <= 0 || b > 8 {
			return fmt.Errorf("config: display.bit_depth entries must be in (0,8], got %d", b)
		}
		sum += b
	}
	if sum%8 != 0 {
		return fmt.Errorf("config: display.bit_depth entries must sum to a multiple of 8, got %d", sum)
	}
	return nil
}

func millimetersToMicrons(mm float64) uint32 {
	return uint32(math.Trunc(math.Round(mm*1e6) / 1000))
}
