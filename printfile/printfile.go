// Package printfile abstracts the container format of a sliced print job
// (spec.md §4.3). A format provider exposes metadata, a lazily-fetched
// ordered layer sequence, and an optional thumbnail; it never fails a print
// on a missing optional capability, returning absence instead (Design Notes:
// "Capability set for file formats").
//
// Grounded on filetypes/printfile.rs (original_source) for the capability
// trait shape, generalized from Rust's Option<T> defaults to Go's
// comma-ok/zero-value idiom.
package printfile

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
)

// ErrNoThumbnail is returned by PrintFile.Thumbnail when the container holds
// no thumbnail for the requested size bucket. Not a fault: callers fall back
// to a placeholder.
var ErrNoThumbnail = errors.New("printfile: no thumbnail available")

// ThumbnailSize names one of the fixed thumbnail buckets a container may
// carry (spec.md §6).
type ThumbnailSize int

const (
	Thumbnail400x400 ThumbnailSize = iota
	Thumbnail800x480
)

// bucketDimensions gives the pixel dimensions backing each fixed
// ThumbnailSize, used by ThumbnailAt to pick a source bucket to rescale.
var bucketDimensions = map[ThumbnailSize][2]int{
	Thumbnail400x400: {400, 400},
	Thumbnail800x480: {800, 480},
}

// LocationCategory distinguishes where a FileData's Path resides (spec.md
// §3, api_objects.rs's LocationCategory enum).
type LocationCategory int

const (
	LocationLocal LocationCategory = iota
	LocationUSB
)

// FileData is the directory-entry-shaped description of a sliced file an
// operator-facing client supplies when it asks the orchestrator to start or
// preview a print, rather than a bare path (spec.md §3, grounded on
// api_objects.rs's FileData). LastModified and FileSize are optional,
// matching the original's Option<u64>; a nil pointer means "not supplied".
type FileData struct {
	Path             string
	Name             string
	LastModified     *uint64
	FileSize         *uint64
	LocationCategory LocationCategory
	ParentPath       string
}

// Metadata is the invariant description of a print job, fixed at open time.
type Metadata struct {
	Name               string
	UsedMaterialGrams  float64
	PrintTimeSeconds   float64
	LayerHeightMicrons uint32
	LayerCount         int
}

// Layer is the encoded, on-disk representation of one slice: its raw
// bitmap bytes (still PNG- or format-encoded) and its computed exposure
// time. Transient — produced on demand and consumed once.
type Layer struct {
	Name          string
	EncodedBitmap []byte
	ExposureTime  float64
}

// MotionOverrides carries job-specific motion parameter overrides a format
// may optionally embed. A provider that embeds none reports ok=false from
// PrintFile.Overrides, and the orchestrator then uses configured defaults
// for every field. There is no per-field presence: when ok is true every
// field is used as given, including fields left at zero.
type MotionOverrides struct {
	LiftMicrons        uint32
	UpSpeedMMPerSec    float64
	DownSpeedMMPerSec  float64
	WaitBeforeExposure float64
	WaitAfterExposure  float64
}

// PrintFile is the capability set required of any sliced-file format
// (spec.md §4.3). Implementations are not required to be safe for concurrent
// use from more than one goroutine at a time on the same layer, but reading
// layer i must be safe to invoke while layer i-1 is still being consumed
// elsewhere — no provider may hold a lock across more than one layer's I/O.
type PrintFile interface {
	io.Closer

	// Metadata returns the invariant PrintMetadata computed at open time.
	Metadata() Metadata

	// LayerNames returns the decoded layer names in deterministic
	// (lexicographic) order.
	LayerNames() []string

	// Layer returns layer #i (encoded bitmap bytes + exposure time).
	// An out-of-range index is reported via ok=false, not an error: the
	// orchestrator treats it as end-of-job (spec.md §7, LayerMissing).
	Layer(index int) (layer Layer, ok bool)

	// Thumbnail returns the thumbnail stored for the requested size
	// bucket, or ErrNoThumbnail if the container holds none for that
	// bucket; the other bucket is not consulted.
	Thumbnail(size ThumbnailSize) ([]byte, error)

	// Overrides returns any per-job motion parameter overrides the
	// container embeds. ok reports whether the container carries
	// overrides at all; the record is all-or-nothing, with no per-field
	// presence flags.
	Overrides() (overrides MotionOverrides, ok bool)
}

// ThumbnailAt returns a PNG-encoded thumbnail of pf rescaled to exactly
// w×h, for callers (e.g. a preview API) that need an arbitrary size rather
// than one of the container's two fixed buckets. It fetches whichever fixed
// bucket is closest in area to the request and rescales with imaging.Resize,
// since no supported container embeds arbitrary-size thumbnails directly.
func ThumbnailAt(pf PrintFile, w, h int) ([]byte, error) {
	raw, err := pf.Thumbnail(nearestBucket(w, h))
	if err != nil {
		return nil, err
	}
	src, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("printfile: decoding source thumbnail: %w", err)
	}
	resized := imaging.Resize(src, w, h, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, fmt.Errorf("printfile: encoding resized thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// nearestBucket picks the fixed ThumbnailSize whose area is closest to
// w×h, so ThumbnailAt starts from the best available source resolution.
func nearestBucket(w, h int) ThumbnailSize {
	best := Thumbnail400x400
	bestDiff := -1
	target := w * h
	for size, dims := range bucketDimensions {
		diff := dims[0]*dims[1] - target
		if diff < 0 {
			diff = -diff
		}
		if bestDiff == -1 || diff < bestDiff || (diff == bestDiff && size < best) {
			best, bestDiff = size, diff
		}
	}
	return best
}

// Open opens file with the format implied by its contents (sniffed, not by
// extension) and returns the matching PrintFile. Supported formats register
// themselves via RegisterFormat at package init.
func Open(path string) (PrintFile, error) {
	var lastMismatch error
	for _, f := range formats {
		pf, err := f.tryOpen(path)
		if errors.Is(err, ErrNotThisFormat) {
			lastMismatch = err
			continue
		}
		return pf, err
	}
	if lastMismatch != nil {
		return nil, fmt.Errorf("printfile: %s: %w", path, lastMismatch)
	}
	return nil, fmt.Errorf("printfile: unrecognized container format: %s", path)
}

// ErrNotThisFormat is returned (wrapped) by a format's tryOpen when path is
// syntactically valid but does not match that format's signature, so Open
// can keep trying the remaining registered formats.
var ErrNotThisFormat = errors.New("printfile: not this format")

type format struct {
	name    string
	tryOpen func(path string) (PrintFile, error)
}

var formats []format

// RegisterFormat adds a format provider to the set Open sniffs against.
// Called from format subpackages' init functions (sl1, goo).
func RegisterFormat(name string, tryOpen func(path string) (PrintFile, error)) {
	formats = append(formats, format{name: name, tryOpen: tryOpen})
}
