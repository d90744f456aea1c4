package printer

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/contrapposto/odyssey/broker"
	"github.com/contrapposto/odyssey/display"
	"github.com/contrapposto/odyssey/gcode"
	"github.com/contrapposto/odyssey/printfile"
)

// autoTransport is a broker.Transport fake that answers every written line
// matching one of its scripted substrings with the paired response, so a
// real gcode.Client can run its full flush/send/await protocol against it
// without a physical UART.
type autoTransport struct {
	mu        sync.Mutex
	inbound   *bytes.Buffer
	written   [][]byte
	responses map[string]string
}

type fakeTimeout struct{}

func (fakeTimeout) Error() string { return "i/o timeout" }
func (fakeTimeout) Timeout() bool { return true }

func (f *autoTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inbound.Len() == 0 {
		return 0, fakeTimeout{}
	}
	return f.inbound.Read(p)
}

func (f *autoTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
	for substr, resp := range f.responses {
		if strings.Contains(string(p), substr) {
			f.inbound.WriteString(resp + "\n")
		}
	}
	return len(p), nil
}

func (f *autoTransport) Close() error { return nil }

// fakeDrawer records every packed frame it is asked to draw.
type fakeDrawer struct {
	mu    sync.Mutex
	drawn [][]byte
}

func (d *fakeDrawer) String() string            { return "fake-panel" }
func (d *fakeDrawer) Halt() error                { return nil }
func (d *fakeDrawer) Bounds() (int, int)         { return 2, 2 }
func (d *fakeDrawer) Draw(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.drawn = append(d.drawn, cp)
	return nil
}

func (d *fakeDrawer) frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.drawn)
}

// fakeJob is an in-memory printfile.PrintFile for exercising the
// orchestrator without a real sliced-file container on disk.
type fakeJob struct {
	meta      printfile.Metadata
	layers    []printfile.Layer
	overrides printfile.MotionOverrides
	hasOver   bool
	closed    bool
}

func (j *fakeJob) Close() error                 { j.closed = true; return nil }
func (j *fakeJob) Metadata() printfile.Metadata { return j.meta }

func (j *fakeJob) LayerNames() []string {
	names := make([]string, len(j.layers))
	for i, l := range j.layers {
		names[i] = l.Name
	}
	return names
}

func (j *fakeJob) Layer(index int) (printfile.Layer, bool) {
	if index < 0 || index >= len(j.layers) {
		return printfile.Layer{}, false
	}
	return j.layers[index], true
}

func (j *fakeJob) Thumbnail(printfile.ThumbnailSize) ([]byte, error) {
	return nil, printfile.ErrNoThumbnail
}

func (j *fakeJob) Overrides() (printfile.MotionOverrides, bool) {
	return j.overrides, j.hasOver
}

func fakeDecode(encoded []byte) ([]byte, int, int, error) {
	return encoded, 2, 2, nil
}

func newTestJob(layerCount int, exposure float64) *fakeJob {
	layers := make([]printfile.Layer, layerCount)
	for i := range layers {
		layers[i] = printfile.Layer{
			Name:          "layer",
			EncodedBitmap: []byte{0xFF, 0xFF, 0xFF, 0xFF},
			ExposureTime:  exposure,
		}
	}
	return &fakeJob{
		meta: printfile.Metadata{
			Name:               "test.sl1",
			LayerHeightMicrons: 50000,
			LayerCount:         layerCount,
		},
		layers: layers,
	}
}

// fixture wires a real gcode.Client and display.Sink over fakes, and a
// Printer driven by a test-owned operations channel.
type fixture struct {
	printer    *Printer
	operations chan Operation
	transport  *autoTransport
	drawer     *fakeDrawer
	brokerCtx  context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tr := &autoTransport{
		inbound: &bytes.Buffer{},
		responses: map[string]string{
			"G0": "MOVE COMPLETE",
		},
	}
	brk := broker.New("fake", tr, nil)
	brokerCtx, cancel := context.WithCancel(context.Background())
	go brk.Run(brokerCtx)

	cfg := gcode.Config{
		Boot:          "G90",
		Shutdown:      "M84",
		Home:          "G28",
		Move:          "G0 Z{z} F{speed}",
		PrintStart:    "START",
		PrintEnd:      "END",
		StartLayer:    "LAYER {layer} OF {total_layers}",
		CureStart:     "CURE ON",
		CureEnd:       "CURE OFF",
		MoveSync:      "MOVE COMPLETE",
		MoveTimeout:   300 * time.Millisecond,
		StatusCheck:   "M115",
		StatusDesired: "ready",
		StatusTimeout: 300 * time.Millisecond,
	}
	client := gcode.NewClient(cfg, brk, nil)

	drawer := &fakeDrawer{}
	sink := display.NewSink(drawer, []int{8}, nil)

	ops := make(chan Operation, 100)
	pcfg := Config{
		MaxZMicrons:               150000,
		DefaultLiftMicrons:        5000,
		DefaultUpSpeedMMPerSec:    5,
		DefaultDownSpeedMMPerSec:  2,
		DefaultWaitBeforeExposure: 0,
		DefaultWaitAfterExposure:  0,
		PauseLiftMicrons:          10000,
	}
	p := New(pcfg, client, sink, fakeDecode, ops, nil)

	t.Cleanup(func() {
		client.Close()
		cancel()
	})

	return &fixture{printer: p, operations: ops, transport: tr, drawer: drawer, brokerCtx: cancel}
}

// TestSingleLayerPrintSequence drives a one-layer job end to end from Idle
// and checks the orchestrator lands back in IdleState having drawn exactly
// one frame (scenario S1).
func TestSingleLayerPrintSequence(t *testing.T) {
	f := newFixture(t)
	job := newTestJob(1, 0.01)
	f.printer.SetOpenJob(func(path string) (printfile.PrintFile, error) { return job, nil })
	f.printer.setState(IdleState{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.printer.Run(ctx) }()

	f.operations <- StartPrint{FileData: printfile.FileData{Path: "job.sl1"}}

	deadline := time.After(1500 * time.Millisecond)
	for {
		if _, ok := f.printer.State().(IdleState); ok && f.drawer.frames() == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("print did not complete; last state %#v, frames=%d", f.printer.State(), f.drawer.frames())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if !job.closed {
		t.Fatal("job was not closed after printing completed")
	}

	cancel()
	<-done
}

// TestPauseRejectsMotionWhilePaused exercises part of S3: a PausePrint
// mid-print issues a safety-lift move and sets Paused, no further command
// reaches the controller while paused, and a StopPrint while paused returns
// the orchestrator to Idle.
func TestPauseRejectsMotionWhilePaused(t *testing.T) {
	f := newFixture(t)
	job := newTestJob(3, 0.05)
	f.printer.SetOpenJob(func(path string) (printfile.PrintFile, error) { return job, nil })
	f.printer.setState(IdleState{})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.printer.Run(ctx) }()

	f.operations <- StartPrint{FileData: printfile.FileData{Path: "job.sl1"}}

	waitForPrinting(t, f.printer)

	f.operations <- PausePrint{}
	waitForPaused(t, f.printer, true)

	f.transport.mu.Lock()
	before := len(f.transport.written)
	f.transport.mu.Unlock()
	time.Sleep(300 * time.Millisecond)
	f.transport.mu.Lock()
	after := len(f.transport.written)
	f.transport.mu.Unlock()
	if after != before {
		t.Fatalf("%d command(s) written while paused, want none", after-before)
	}

	f.operations <- StopPrint{}
	waitForIdle(t, f.printer)

	cancel()
	<-done
}

// TestControllerTimeoutTransitionsToShutdown exercises S4: a move that never
// receives its expected response times out, which funnels through
// faultShutdown into ShutdownState.
func TestControllerTimeoutTransitionsToShutdown(t *testing.T) {
	f := newFixture(t)
	// No scripted response for G0, so MoveZ will always time out.
	f.transport.mu.Lock()
	f.transport.responses = map[string]string{}
	f.transport.mu.Unlock()

	job := newTestJob(1, 0.01)
	f.printer.SetOpenJob(func(path string) (printfile.PrintFile, error) { return job, nil })
	f.printer.setState(IdleState{})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.printer.Run(ctx) }()

	f.operations <- StartPrint{FileData: printfile.FileData{Path: "job.sl1"}}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := f.printer.State().(ShutdownState); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected ShutdownState after controller timeout, got %#v", f.printer.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func waitForPrinting(t *testing.T, p *Printer) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if _, ok := p.State().(PrintingState); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("never entered PrintingState; last state %#v", p.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitForPaused(t *testing.T, p *Printer, want bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if st, ok := p.State().(PrintingState); ok && st.Paused == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("never reached Paused=%v; last state %#v", want, p.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitForIdle(t *testing.T, p *Printer) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if _, ok := p.State().(IdleState); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("never returned to IdleState; last state %#v", p.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
