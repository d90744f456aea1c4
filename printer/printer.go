// Package printer implements the print orchestrator (C4, spec.md §4.4): the
// state machine that sequences per-layer motion, exposure, and
// synchronization against the motion protocol client and display sink, and
// that dispatches operator commands appropriately for whichever state it is
// currently in.
//
// Grounded on printer.rs (original_source) for the per-state event-loop
// shape (print_event_loop / idle_event_loop / shutdown via boot), adapted
// from tokio's mpsc/broadcast channels and async fn to Go channels,
// context.Context, and golang.org/x/sync/errgroup.
package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contrapposto/odyssey/display"
	"github.com/contrapposto/odyssey/gcode"
	"github.com/contrapposto/odyssey/printfile"
)

// DecodeBitmap turns a format-encoded layer bitmap (e.g. PNG) into a raw
// one-byte-per-pixel buffer plus its dimensions. PNG decoding is explicitly
// out of this core's scope (spec.md §1); the orchestrator is handed a
// decoder rather than choosing one, so it never imports an image codec
// itself.
type DecodeBitmap func(encoded []byte) (pixels []byte, width, height int, err error)

// OpenJob opens a sliced-file container by path. Defaults to
// printfile.Open; overridable so tests can supply an in-memory job.
type OpenJob func(path string) (printfile.PrintFile, error)

// Printer is the orchestrator. It exclusively owns State, the motion
// client, the display sink, and (while Printing) the open job — spec.md §3,
// "Ownership".
type Printer struct {
	cfg     Config
	client  *gcode.Client
	sink    *display.Sink
	decode  DecodeBitmap
	openJob OpenJob
	log     *logrus.Entry

	operations <-chan Operation
	status     *statusBus

	mu    sync.Mutex
	state State

	// job and currentLayerZMicrons are valid only while Printing; they are
	// orchestrator-private working state, not part of the published State.
	job                  printfile.PrintFile
	currentLayerZMicrons uint32
}

// New constructs a Printer. operations is the caller-owned inbound command
// channel (spec.md §6, "Operation channel"); it should be buffered to at
// least 100 entries.
func New(cfg Config, client *gcode.Client, sink *display.Sink, decode DecodeBitmap, operations <-chan Operation, log *logrus.Entry) *Printer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Printer{
		cfg:        cfg,
		client:     client,
		sink:       sink,
		decode:     decode,
		openJob:    printfile.Open,
		operations: operations,
		status:     newStatusBus(),
		log:        log.WithField("component", "printer"),
		state:      ShutdownState{},
	}
}

// Subscribe returns a channel of State snapshots (spec.md §6, "Status
// channel") and an unsubscribe function.
func (p *Printer) Subscribe() (<-chan State, func()) {
	return p.status.Subscribe()
}

// SetOpenJob overrides the sliced-file opener. Exposed for tests that need
// to hand the orchestrator an in-memory printfile.PrintFile without going
// through a real container on disk.
func (p *Printer) SetOpenJob(open OpenJob) {
	p.openJob = open
}

// State returns a snapshot of the current orchestrator state.
func (p *Printer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Printer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Printer) publish() {
	p.status.Publish(p.State())
}

// Run drives the state machine until ctx is cancelled or a fatal error
// occurs. A nil return means an orderly shutdown (exit code 0); a non-nil
// return is a fatal, uncaught fault (exit code 1), per spec.md §6.
func (p *Printer) Run(ctx context.Context) error {
	defer p.status.closeAll()
	p.publish()

	for {
		if ctx.Err() != nil {
			return p.orderlyShutdown()
		}

		var err error
		switch p.State().(type) {
		case ShutdownState:
			err = p.shutdownLoop(ctx)
		case IdleState:
			err = p.idleLoop(ctx)
		case PrintingState:
			err = p.printLoop(ctx)
		default:
			return fmt.Errorf("printer: unknown state %T", p.State())
		}
		if err != nil {
			return err
		}
	}
}

// orderlyShutdown runs on host cancellation (spec.md §5, "any: cancellation
// signal from host -> orderly Shutdown"). Best-effort: a failing shutdown
// command still leaves the orchestrator in ShutdownState.
func (p *Printer) orderlyShutdown() error {
	if _, alreadyShutdown := p.State().(ShutdownState); alreadyShutdown {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.client.Shutdown(shutdownCtx); err != nil {
		p.log.WithError(err).Warn("best-effort shutdown command failed during cancellation")
	}
	p.closeActiveJob()
	p.setState(ShutdownState{})
	p.publish()
	return nil
}

// faultShutdown implements the universal failure response of spec.md §4.4:
// log, best-effort shutdown(), transition to Shutdown. ShutdownState carries
// no PhysicalState, and the client's stored PhysicalState is left as it
// was; no sentinel position is recorded anywhere.
func (p *Printer) faultShutdown(cause error) error {
	p.log.WithError(cause).Error("hardware fault; transitioning to shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.client.Shutdown(shutdownCtx); err != nil {
		p.log.WithError(err).Warn("best-effort shutdown command also failed")
	}
	p.closeActiveJob()
	p.setState(ShutdownState{})
	p.publish()
	return nil
}

func (p *Printer) closeActiveJob() {
	if p.job != nil {
		if err := p.job.Close(); err != nil {
			p.log.WithError(err).Warn("closing job file")
		}
		p.job = nil
	}
}

func (p *Printer) resolveMotionParams(job printfile.PrintFile) motionParams {
	params := motionParams{
		liftMicrons:        p.cfg.DefaultLiftMicrons,
		upSpeedMMPerSec:    p.cfg.DefaultUpSpeedMMPerSec,
		downSpeedMMPerSec:  p.cfg.DefaultDownSpeedMMPerSec,
		waitBeforeExposure: p.cfg.DefaultWaitBeforeExposure,
		waitAfterExposure:  p.cfg.DefaultWaitAfterExposure,
	}
	overrides, ok := job.Overrides()
	if !ok {
		return params
	}
	params.liftMicrons = overrides.LiftMicrons
	params.upSpeedMMPerSec = overrides.UpSpeedMMPerSec
	params.downSpeedMMPerSec = overrides.DownSpeedMMPerSec
	params.waitBeforeExposure = durationFromSeconds(overrides.WaitBeforeExposure)
	params.waitAfterExposure = durationFromSeconds(overrides.WaitAfterExposure)
	return params
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func clampZMicrons(target, max uint32) uint32 {
	return min(target, max)
}
