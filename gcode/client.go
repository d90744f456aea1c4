// Package gcode implements the motion protocol client (spec.md §4.2): it
// renders operator-configured command templates, sequences them against a
// broker.Broker with a flush/send/await protocol, and keeps an authoritative
// PhysicalState in sync with what has actually been sent to the hardware.
//
// Grounded on gcode.rs (original_source) for the substitution-map shape and
// on other_examples' commandstation/z21 client for the sendAndAwait/retry
// idiom expressed in Go.
package gcode

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contrapposto/odyssey/broker"
)

// PhysicalState is the authoritative pose of the machine (spec.md §3).
// Integer microns are canonical; any floating-point value is derived only
// at the template-rendering edge.
type PhysicalState struct {
	ZMicrons uint32
	Curing   bool
}

// Client is stateless at the public layer: it is driven entirely by the
// orchestrator, which owns it exclusively and calls it from a single task,
// so no internal serialization beyond the state mutex is required.
type Client struct {
	cfg Config
	brk *broker.Broker
	log *logrus.Entry

	inbound <-chan string
	unsub   func()

	interCommandDelay time.Duration

	mu        sync.Mutex
	state     PhysicalState
	printSubs map[string]string
}

// NewClient subscribes to brk immediately so that the flush step of every
// later send-and-await has a persistent subscription to drain, not a fresh
// one that would miss lines broadcast before the call.
func NewClient(cfg Config, brk *broker.Broker, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	inbound, unsub := brk.Subscribe()
	return &Client{
		cfg:               cfg,
		brk:               brk,
		log:               log.WithField("component", "gcode"),
		inbound:           inbound,
		unsub:             unsub,
		interCommandDelay: 100 * time.Millisecond,
		printSubs:         make(map[string]string),
	}
}

// Close releases the client's subscription to the broker.
func (c *Client) Close() { c.unsub() }

// State returns a snapshot of the currently known PhysicalState.
func (c *Client) State() PhysicalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetSubstitution sets a print substitution ({total_layers}, {layer},
// {max_z}, {z_lift}, or any operator-defined key) used by every subsequent
// render until cleared.
func (c *Client) SetSubstitution(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printSubs[name] = value
}

// ClearSubstitution removes a previously set print substitution.
func (c *Client) ClearSubstitution(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.printSubs, name)
}

// snapshotSubstitutions merges the always-fresh state substitutions with the
// print substitutions the orchestrator has configured.
func (c *Client) snapshotSubstitutions() map[string]string {
	subs := make(map[string]string, len(c.printSubs)+2)
	for k, v := range c.printSubs {
		subs[k] = v
	}
	subs["z"] = formatMicronsAsMM(c.state.ZMicrons)
	subs["curing"] = formatBool(c.state.Curing)
	return subs
}

func (c *Client) renderLocked(template string) string {
	return render(template, c.snapshotSubstitutions())
}

// drainPending discards any lines already buffered on the subscription
// before a send, so that the next observed match corresponds to the command
// about to be sent, not a stale acknowledgement from a prior one (spec.md
// §4.2 step 1; scenario S5).
func (c *Client) drainPending() {
	for {
		select {
		case <-c.inbound:
		default:
			return
		}
	}
}

// send pushes a rendered line, CRLF-terminated, to the broker and then
// pauses for the inter-command delay so controllers that drop back-to-back
// commands are respected.
func (c *Client) send(ctx context.Context, op, line string) error {
	if err := c.brk.Send(ctx, line+"\r\n"); err != nil {
		return &ControllerFaultError{Op: op, Err: err}
	}
	c.log.WithFields(logrus.Fields{"op": op, "line": line}).Debug("sent gcode")
	select {
	case <-time.After(c.interCommandDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendAndAwait implements the flush/send/await algorithm of spec.md §4.2.
func (c *Client) sendAndAwait(ctx context.Context, op, line, expect string, timeout time.Duration) error {
	c.drainPending()
	if err := c.send(ctx, op, line); err != nil {
		return err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case got, ok := <-c.inbound:
			if !ok {
				return &ControllerFaultError{Op: op, Err: context.Canceled}
			}
			if strings.Contains(got, expect) {
				c.log.WithFields(logrus.Fields{"op": op, "response": got}).Debug("matched expected response")
				return nil
			}
		case <-deadline.C:
			return &ControllerTimeoutError{Op: op, Expect: expect, Timeout: timeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// IsReady sends the configured status probe and reports whether the
// expected substring appeared within one status-check window.
func (c *Client) IsReady(ctx context.Context) (bool, error) {
	err := c.sendAndAwait(ctx, "is_ready", c.renderLocked(c.cfg.StatusCheck), c.cfg.StatusDesired, c.cfg.StatusTimeout)
	if err == nil {
		return true, nil
	}
	var timeoutErr *ControllerTimeoutError
	if errors.As(err, &timeoutErr) {
		return false, nil
	}
	return false, err
}

// Home renders and sends the homing command (fire-and-forget).
func (c *Client) Home(ctx context.Context) (PhysicalState, error) {
	return c.fireAndForget(ctx, "home", c.cfg.Home)
}

// Boot renders and sends the boot command.
func (c *Client) Boot(ctx context.Context) (PhysicalState, error) {
	return c.fireAndForget(ctx, "boot", c.cfg.Boot)
}

// Shutdown renders and sends the shutdown command. It is itself
// best-effort: callers that receive an error from Shutdown still transition
// their own state to Shutdown.
func (c *Client) Shutdown(ctx context.Context) (PhysicalState, error) {
	return c.fireAndForget(ctx, "shutdown", c.cfg.Shutdown)
}

// StartPrint renders and sends the print-start command.
func (c *Client) StartPrint(ctx context.Context) (PhysicalState, error) {
	return c.fireAndForget(ctx, "start_print", c.cfg.PrintStart)
}

// EndPrint renders and sends the print-end command.
func (c *Client) EndPrint(ctx context.Context) (PhysicalState, error) {
	return c.fireAndForget(ctx, "end_print", c.cfg.PrintEnd)
}

// StartLayer sets {layer} and renders and sends the start-layer command.
func (c *Client) StartLayer(ctx context.Context, layer uint) (PhysicalState, error) {
	c.SetSubstitution("layer", strconv.FormatUint(uint64(layer), 10))
	return c.fireAndForget(ctx, "start_layer", c.cfg.StartLayer)
}

// ManualCommand renders an operator-supplied raw command line with the same
// substitutions as every template (state and print substitutions) and
// sends it.
func (c *Client) ManualCommand(ctx context.Context, raw string) (PhysicalState, error) {
	return c.fireAndForget(ctx, "manual_command", raw)
}

func (c *Client) fireAndForget(ctx context.Context, op, template string) (PhysicalState, error) {
	c.mu.Lock()
	line := c.renderLocked(template)
	c.mu.Unlock()

	if err := c.send(ctx, op, line); err != nil {
		return c.State(), err
	}
	return c.State(), nil
}

// StartCure renders and sends the cure-start command and marks curing=true.
func (c *Client) StartCure(ctx context.Context) (PhysicalState, error) {
	c.mu.Lock()
	line := c.renderLocked(c.cfg.CureStart)
	c.mu.Unlock()

	if err := c.send(ctx, "start_cure", line); err != nil {
		return c.State(), err
	}
	c.mu.Lock()
	c.state.Curing = true
	state := c.state
	c.mu.Unlock()
	return state, nil
}

// StopCure renders and sends the cure-end command and marks curing=false.
func (c *Client) StopCure(ctx context.Context) (PhysicalState, error) {
	c.mu.Lock()
	line := c.renderLocked(c.cfg.CureEnd)
	c.mu.Unlock()

	if err := c.send(ctx, "stop_cure", line); err != nil {
		return c.State(), err
	}
	c.mu.Lock()
	c.state.Curing = false
	state := c.state
	c.mu.Unlock()
	return state, nil
}

// MoveZ sends the move template and waits for the configured move-complete
// substring. The stored z is updated to targetMicrons before the command is
// emitted, matching spec.md §4.2. speedMMPerSec is converted to mm/min
// before rendering.
func (c *Client) MoveZ(ctx context.Context, targetMicrons uint32, speedMMPerSec float64) (PhysicalState, error) {
	c.mu.Lock()
	c.state.ZMicrons = targetMicrons
	c.printSubs["speed"] = mmPerSecToMMPerMin(speedMMPerSec)
	line := c.renderLocked(c.cfg.Move)
	c.mu.Unlock()

	if err := c.sendAndAwait(ctx, "move_z", line, c.cfg.MoveSync, c.cfg.MoveTimeout); err != nil {
		return c.State(), err
	}
	return c.State(), nil
}
