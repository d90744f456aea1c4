// Package sl1 implements the printfile.PrintFile capability set for the
// repository's one concrete container format: a ZIP archive holding a
// UTF-8 INI metadata file at config.ini, zero or more PNG layer images at
// archive root, and two fixed-path thumbnails (spec.md §6).
//
// Grounded on sl1.rs (original_source) for the archive layout and the
// config.ini field names, and on
// other_examples/ea5aef8e_multiverse-hardware-labs-dastard__data_source.go.go
// for using viper as a generic INI unmarshaler rather than a bespoke parser.
package sl1

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image/png"
	"io"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/contrapposto/odyssey/printfile"
)

const configEntryName = "config.ini"

var thumbnailPaths = map[printfile.ThumbnailSize]string{
	printfile.Thumbnail400x400: "thumbnail/thumbnail400x400.png",
	printfile.Thumbnail800x480: "thumbnail/thumbnail800x480.png",
}

func init() {
	printfile.RegisterFormat("sl1", tryOpen)
}

func tryOpen(path string) (printfile.PrintFile, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		// Not a ZIP at all: let the next registered format have a try.
		return nil, fmt.Errorf("printfile/sl1: %w", printfile.ErrNotThisFormat)
	}
	if _, err := zr.Open(configEntryName); err != nil {
		zr.Close()
		return nil, fmt.Errorf("printfile/sl1: missing %s: %w", configEntryName, printfile.ErrNotThisFormat)
	}
	return newSl1(path, zr)
}

// printConfig mirrors the fields PrusaSlicer writes to config.ini.
type printConfig struct {
	ExpTime               float64 `mapstructure:"exp_time"`
	ExpTimeFirst          float64 `mapstructure:"exp_time_first"`
	FileCreationTimestamp string  `mapstructure:"file_creation_timestamp"`
	JobDir                string  `mapstructure:"job_dir"`
	LayerHeight           float64 `mapstructure:"layer_height"`
	MaterialName          string  `mapstructure:"material_name"`
	NumFade               int     `mapstructure:"num_fade"`
	PrintTime             float64 `mapstructure:"print_time"`
	UsedMaterial          float64 `mapstructure:"used_material"`

	LiftHeight      float64 `mapstructure:"lift_height"`
	UpSpeedMMPerMin float64 `mapstructure:"up_speed"`
	DownSpeedMMPerMin float64 `mapstructure:"down_speed"`
	DelayBeforeExposure float64 `mapstructure:"delay_before_exposure"`
	DelayAfterExposure  float64 `mapstructure:"delay_after_exposure"`
}

// millimetersToMicrons truncates a millimetre value to integer microns.
// Rounds to the nearest nanometre first to absorb float64 representation noise
// (0.05 has no exact binary representation) before truncating, so that the
// truncation spec.md §4.3 mandates operates on the decimal value the
// slicer wrote, not on float64's binary approximation of it.
func millimetersToMicrons(mm float64) uint32 {
	return uint32(math.Trunc(math.Round(mm*1e6) / 1000))
}

// exposureTime implements the linear fade formula of spec.md §4.3.
func (c printConfig) exposureTime(index int) float64 {
	if index < c.NumFade && c.NumFade > 0 {
		fadeRate := float64(c.NumFade-index) / float64(c.NumFade)
		return c.ExpTime + (c.ExpTimeFirst-c.ExpTime)*fadeRate
	}
	return c.ExpTime
}

// hasOverrides reports whether PrusaSlicer populated any of the optional
// per-job motion fields; config.ini always carries lift_height/up_speed/
// down_speed for files sliced with a profile, but older or hand-edited
// files may omit them, in which case they decode to zero and are not an
// override the orchestrator should honor.
func (c printConfig) hasOverrides() bool {
	return c.LiftHeight > 0 || c.UpSpeedMMPerMin > 0 || c.DownSpeedMMPerMin > 0
}

type Sl1 struct {
	name       string
	archive    *zip.ReadCloser
	config     printConfig
	layerNames []string
}

func newSl1(name string, zr *zip.ReadCloser) (*Sl1, error) {
	f, err := zr.Open(configEntryName)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("printfile/sl1: opening %s: %w", configEntryName, err)
	}
	defer f.Close()

	v := viper.New()
	v.SetConfigType("ini")
	if err := v.ReadConfig(f); err != nil {
		zr.Close()
		return nil, fmt.Errorf("printfile/sl1: parsing %s: %w", configEntryName, err)
	}

	var cfg printConfig
	if err := v.Unmarshal(&cfg); err != nil {
		zr.Close()
		return nil, fmt.Errorf("printfile/sl1: decoding %s: %w", configEntryName, err)
	}

	var names []string
	for _, zf := range zr.File {
		if strings.HasSuffix(zf.Name, ".png") && !strings.Contains(zf.Name, "/") {
			names = append(names, zf.Name)
		}
	}
	sort.Strings(names)

	return &Sl1{name: name, archive: zr, config: cfg, layerNames: names}, nil
}

func (s *Sl1) Close() error { return s.archive.Close() }

func (s *Sl1) Metadata() printfile.Metadata {
	return printfile.Metadata{
		Name:               path.Base(s.name),
		UsedMaterialGrams:  s.config.UsedMaterial,
		PrintTimeSeconds:   s.config.PrintTime,
		LayerHeightMicrons: millimetersToMicrons(s.config.LayerHeight),
		LayerCount:         len(s.layerNames),
	}
}

func (s *Sl1) LayerNames() []string { return s.layerNames }

func (s *Sl1) Layer(index int) (printfile.Layer, bool) {
	if index < 0 || index >= len(s.layerNames) {
		return printfile.Layer{}, false
	}
	name := s.layerNames[index]
	zf, err := s.archive.Open(name)
	if err != nil {
		return printfile.Layer{}, false
	}
	defer zf.Close()

	data, err := io.ReadAll(zf)
	if err != nil {
		return printfile.Layer{}, false
	}

	return printfile.Layer{
		Name:          name,
		EncodedBitmap: data,
		ExposureTime:  s.config.exposureTime(index),
	}, true
}

func (s *Sl1) Thumbnail(size printfile.ThumbnailSize) ([]byte, error) {
	entryName, ok := thumbnailPaths[size]
	if !ok {
		return nil, printfile.ErrNoThumbnail
	}
	zf, err := s.archive.Open(entryName)
	if err != nil {
		return nil, printfile.ErrNoThumbnail
	}
	defer zf.Close()
	return io.ReadAll(zf)
}

func (s *Sl1) Overrides() (printfile.MotionOverrides, bool) {
	if !s.config.hasOverrides() {
		return printfile.MotionOverrides{}, false
	}
	return printfile.MotionOverrides{
		LiftMicrons:        millimetersToMicrons(s.config.LiftHeight),
		UpSpeedMMPerSec:    s.config.UpSpeedMMPerMin / 60.0,
		DownSpeedMMPerSec:  s.config.DownSpeedMMPerMin / 60.0,
		WaitBeforeExposure: s.config.DelayBeforeExposure,
		WaitAfterExposure:  s.config.DelayAfterExposure,
	}, true
}

// DecodeBitmap decodes the PNG-encoded layer bitmap into a raw one-byte-
// per-pixel grayscale buffer, the boundary the orchestrator crosses from
// Layer to Frame (spec.md §3). Kept here rather than in printfile because
// PNG decoding is explicitly out of the core's scope (spec.md §1) and this
// helper exists only for tests and for callers that choose not to supply
// their own decode step.
func DecodeBitmap(encoded []byte) ([]byte, int, int, error) {
	img, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("printfile/sl1: decoding layer png: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gr, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out[y*w+x] = byte(gr >> 8)
		}
	}
	return out, w, h, nil
}
