package printer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/contrapposto/odyssey/gcode"
)

var errEmptyJob = errors.New("job contains no layers")

// idleLoop implements the Idle sub-loop: operations are dispatched directly
// to the motion client or display sink; a ~1s tick bounds latency for
// external state observers (spec.md §4.4).
func (p *Printer) idleLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op, ok := <-p.operations:
			if !ok {
				return nil
			}
			if err := p.handleIdleOperation(ctx, op); err != nil {
				return err
			}
			if _, stillIdle := p.State().(IdleState); !stillIdle {
				return nil
			}
		case <-ticker.C:
			// Bounds the latency of external observers; no action needed.
		}
	}
}

func (p *Printer) handleIdleOperation(ctx context.Context, op Operation) error {
	switch o := op.(type) {
	case QueryState:
		p.publish()

	case StartPrint:
		return p.handleStartPrint(ctx, o)

	case ManualHome:
		physical, err := p.client.Home(ctx)
		if err != nil {
			return p.faultShutdown(err)
		}
		p.setState(IdleState{Physical: physical})
		p.publish()

	case ManualMove:
		target := clampZMicrons(o.ZMicrons, p.cfg.MaxZMicrons)
		speed := p.cfg.DefaultUpSpeedMMPerSec
		if idle, ok := p.State().(IdleState); ok && target < idle.Physical.ZMicrons {
			speed = p.cfg.DefaultDownSpeedMMPerSec
		}
		physical, err := p.client.MoveZ(ctx, target, speed)
		if err != nil {
			return p.faultShutdown(err)
		}
		p.setState(IdleState{Physical: physical})
		p.publish()

	case ManualCure:
		var physical gcode.PhysicalState
		var err error
		if o.On {
			physical, err = p.client.StartCure(ctx)
		} else {
			physical, err = p.client.StopCure(ctx)
		}
		if err != nil {
			return p.faultShutdown(err)
		}
		p.setState(IdleState{Physical: physical})
		p.publish()

	case ManualCommand:
		physical, err := p.client.ManualCommand(ctx, o.Raw)
		if err != nil {
			return p.faultShutdown(err)
		}
		p.setState(IdleState{Physical: physical})
		p.publish()

	case ManualDisplayTest:
		if err := p.sink.DisplayTest(o.Pattern); err != nil {
			p.log.WithError(err).Error("display test pattern failed")
		}

	case ManualDisplayLayer:
		p.handleManualDisplayLayer(o)

	case Shutdown:
		p.handleShutdownOperation(ctx)

	default:
		p.log.WithError(&OperatorRejectionError{
			Operation: fmt.Sprintf("%T", op),
			State:     "Idle",
			Reason:    "not valid while idle",
		}).Warn("operator rejection")
	}
	return nil
}

func (p *Printer) handleStartPrint(ctx context.Context, o StartPrint) error {
	path := o.FileData.Path
	job, err := p.openJob(path)
	if err != nil {
		p.log.WithError(&JobMalformedError{Path: path, Err: err}).Error("rejecting start_print")
		return nil
	}
	meta := job.Metadata()
	if meta.LayerCount == 0 {
		job.Close()
		p.log.WithError(&JobMalformedError{Path: path, Err: errEmptyJob}).Error("rejecting start_print")
		return nil
	}

	p.job = job
	p.setState(PrintingState{Job: meta, Layer: 0, Paused: false, Physical: p.currentPhysical()})
	p.publish()
	return nil
}

func (p *Printer) handleManualDisplayLayer(o ManualDisplayLayer) {
	job, err := p.openJob(o.FileData.Path)
	if err != nil {
		p.log.WithError(err).Error("manual display layer: opening job")
		return
	}
	defer job.Close()

	layer, ok := job.Layer(o.LayerIndex)
	if !ok {
		p.log.WithError(&LayerMissingError{Job: o.FileData.Name, Index: o.LayerIndex}).Error("manual display layer: index not present")
		return
	}
	pixels, _, _, err := p.decode(layer.EncodedBitmap)
	if err != nil {
		p.log.WithError(err).Error("manual display layer: decoding bitmap")
		return
	}
	if err := p.sink.DisplayFrame(pixels); err != nil {
		p.log.WithError(err).Error("manual display layer: writing frame")
	}
}

func (p *Printer) handleShutdownOperation(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.client.Shutdown(shutdownCtx); err != nil {
		p.log.WithError(err).Warn("best-effort shutdown command failed")
	}
	p.setState(ShutdownState{})
	p.publish()
}

func (p *Printer) currentPhysical() gcode.PhysicalState {
	switch s := p.State().(type) {
	case IdleState:
		return s.Physical
	case PrintingState:
		return s.Physical
	default:
		return p.client.State()
	}
}
