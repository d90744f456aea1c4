package printer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contrapposto/odyssey/gcode"
	"github.com/contrapposto/odyssey/printfile"
)

// decodedFrame is the Frame of spec.md §3: the decoded counterpart to
// Layer. At most two are ever live at once per the invariant in §3 —
// exactly current and prefetched-next, enforced here by never holding a
// third.
type decodedFrame struct {
	layer  printfile.Layer
	pixels []byte
	width  int
	height int
}

// fetchFrame retrieves and decodes layer index from job. A missing index is
// reported via ok=false with a nil error (end of job, spec.md §4.3). A
// decode failure is reported via err — the orchestrator treats it like
// end-of-job but logs it distinctly (spec.md §4.4, "Frame prefetch failure
// is fatal to the print... classified as error").
func (p *Printer) fetchFrame(job printfile.PrintFile, index int) (decodedFrame, bool, error) {
	layer, ok := job.Layer(index)
	if !ok {
		return decodedFrame{}, false, nil
	}
	pixels, w, h, err := p.decode(layer.EncodedBitmap)
	if err != nil {
		return decodedFrame{}, false, err
	}
	return decodedFrame{layer: layer, pixels: pixels, width: w, height: h}, true, nil
}

// logLayerMissing logs a LayerMissingError when index fell short of the
// job's own declared layer count — a genuine early EOF, as distinct from
// the expected absence once index reaches total (spec.md §7).
func (p *Printer) logLayerMissing(jobName string, index, total int) {
	if index >= total {
		return
	}
	p.log.WithError(&LayerMissingError{Job: jobName, Index: index}).Warn("layer missing before job's declared layer count; ending print")
}

// printLoop implements the print event loop of spec.md §4.4. Precondition:
// p.job is open and p.State() is PrintingState.
func (p *Printer) printLoop(ctx context.Context) error {
	job := p.job
	state := p.State().(PrintingState)
	meta := state.Job
	params := p.resolveMotionParams(job)

	p.client.SetSubstitution("total_layers", strconv.Itoa(meta.LayerCount))
	defer p.client.ClearSubstitution("total_layers")
	defer p.client.ClearSubstitution("layer")

	physical, err := p.client.StartPrint(ctx)
	if err != nil {
		return p.faultShutdown(err)
	}
	p.updatePrintingPhysical(physical)

	current, hasCurrent, err := p.fetchFrame(job, 0)
	if err != nil {
		p.log.WithError(err).Error("prefetching first layer failed; ending print")
		hasCurrent = false
	} else if !hasCurrent {
		p.logLayerMissing(meta.Name, 0, meta.LayerCount)
	}

	for {
		if ctx.Err() != nil {
			break
		}
		layer := p.State().(PrintingState).Layer
		if !hasCurrent || int(layer) >= meta.LayerCount {
			break
		}

		stopped, err := p.drainPrintingOperations(ctx, params)
		if err != nil {
			return err
		}
		if stopped {
			return nil
		}
		if p.State().(PrintingState).Paused {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
			}
			continue
		}

		p.client.SetSubstitution("layer", strconv.FormatUint(uint64(layer), 10))

		g, _ := errgroup.WithContext(ctx)
		var next decodedFrame
		var hasNext bool
		g.Go(func() error {
			n, ok, ferr := p.fetchFrame(job, int(layer)+1)
			if ferr != nil {
				p.log.WithError(ferr).Error("prefetching next layer failed; will end print")
			} else if !ok {
				p.logLayerMissing(meta.Name, int(layer)+1, meta.LayerCount)
			}
			next, hasNext = n, ok
			return nil
		})

		if err := p.printFrame(ctx, current, layer, meta, params); err != nil {
			g.Wait()
			return p.faultShutdown(err)
		}

		if err := g.Wait(); err != nil {
			return p.faultShutdown(err)
		}

		current, hasCurrent = next, hasNext
		p.advanceLayer(layer + 1)
	}

	physical, err = p.client.EndPrint(ctx)
	if err != nil {
		return p.faultShutdown(err)
	}
	p.closeActiveJob()
	p.setState(IdleState{Physical: physical})
	p.publish()
	return nil
}

// printFrame implements steps d-j of the print event loop for one layer:
// start_layer, the two-phase move, the pre-exposure wait, the display
// write, the cure, and the post-exposure wait.
func (p *Printer) printFrame(ctx context.Context, frame decodedFrame, layer uint, meta printfile.Metadata, params motionParams) error {
	physical, err := p.client.StartLayer(ctx, layer)
	if err != nil {
		return err
	}
	p.updatePrintingPhysical(physical)

	targetZ := (layer + 1) * meta.LayerHeightMicrons

	physical, err = p.client.MoveZ(ctx, clampZMicrons(targetZ+params.liftMicrons, p.cfg.MaxZMicrons), params.upSpeedMMPerSec)
	if err != nil {
		return err
	}
	p.updatePrintingPhysical(physical)

	physical, err = p.client.MoveZ(ctx, clampZMicrons(targetZ, p.cfg.MaxZMicrons), params.downSpeedMMPerSec)
	if err != nil {
		return err
	}
	p.updatePrintingPhysical(physical)
	p.currentLayerZMicrons = targetZ

	if err := sleepCancellable(ctx, params.waitBeforeExposure); err != nil {
		return err
	}

	if err := p.sink.DisplayFrame(frame.pixels); err != nil {
		p.log.WithError(err).Error("writing frame to display")
	}

	physical, err = p.client.StartCure(ctx)
	if err != nil {
		return err
	}
	p.updatePrintingPhysical(physical)

	// Exposure sleeps are never cancellable: a cancel mid-exposure still
	// completes the exposure and issues stop-cure so UV is never left on
	// (spec.md §5).
	time.Sleep(time.Duration(frame.layer.ExposureTime * float64(time.Second)))

	physical, err = p.client.StopCure(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	p.updatePrintingPhysical(physical)

	return sleepCancellable(ctx, params.waitAfterExposure)
}

// drainPrintingOperations implements step (a) of the print event loop:
// non-blocking drain of pending operations, applying any that are valid
// while Printing.
func (p *Printer) drainPrintingOperations(ctx context.Context, params motionParams) (stopped bool, err error) {
	for {
		select {
		case op, ok := <-p.operations:
			if !ok {
				return true, nil
			}
			switch o := op.(type) {
			case QueryState:
				p.publish()

			case PausePrint:
				if err := p.pauseWithSafetyLift(ctx, params); err != nil {
					return true, p.faultShutdown(err)
				}

			case ResumePrint:
				st := p.State().(PrintingState)
				st.Paused = false
				p.setState(st)
				p.publish()

			case StopPrint:
				p.stopPrint(ctx)
				return true, nil

			case Shutdown:
				p.handleShutdownOperation(ctx)
				p.closeActiveJob()
				return true, nil

			case ManualMove:
				st := p.State().(PrintingState)
				if !st.Paused {
					p.log.WithError(&OperatorRejectionError{
						Operation: "ManualMove",
						State:     "Printing",
						Reason:    "not paused",
					}).Warn("operator rejection")
					continue
				}
				target := clampZMicrons(o.ZMicrons, p.cfg.MaxZMicrons)
				target = max(target, p.currentLayerZMicrons)
				physical, merr := p.client.MoveZ(ctx, target, params.upSpeedMMPerSec)
				if merr != nil {
					return true, p.faultShutdown(merr)
				}
				p.updatePrintingPhysical(physical)

			default:
				p.log.WithError(&OperatorRejectionError{
					Operation: fmt.Sprintf("%T", op),
					State:     "Printing",
					Reason:    "not valid while printing",
				}).Warn("operator rejection")
			}
		default:
			return false, nil
		}
	}
}

func (p *Printer) pauseWithSafetyLift(ctx context.Context, params motionParams) error {
	st := p.State().(PrintingState)
	if st.Paused {
		return nil
	}
	target := min(p.cfg.MaxZMicrons, st.Physical.ZMicrons+p.cfg.PauseLiftMicrons)
	physical, err := p.client.MoveZ(ctx, target, params.upSpeedMMPerSec)
	if err != nil {
		return err
	}
	st.Physical = physical
	st.Paused = true
	p.setState(st)
	p.publish()
	return nil
}

func (p *Printer) stopPrint(ctx context.Context) {
	physical, err := p.client.EndPrint(ctx)
	if err != nil {
		p.log.WithError(err).Warn("best-effort end_print failed on stop")
		physical = p.client.State()
	}
	p.closeActiveJob()
	p.setState(IdleState{Physical: physical})
	p.publish()
}

func (p *Printer) updatePrintingPhysical(physical gcode.PhysicalState) {
	st := p.State().(PrintingState)
	st.Physical = physical
	p.setState(st)
	p.publish()
}

func (p *Printer) advanceLayer(layer uint) {
	st := p.State().(PrintingState)
	st.Layer = layer
	p.setState(st)
	p.publish()
}

// sleepCancellable sleeps for d, returning early (with ctx.Err()) if ctx is
// cancelled first. Used for the pre/post-exposure waits, which unlike the
// cure sleep itself are ordinary cooperative suspension points.
func sleepCancellable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
