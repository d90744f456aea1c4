// Package broker decouples the framing concerns of the physical UART from
// the motion protocol client. It presents two endpoints: an outbound sink
// that accepts already-formed, line-terminated command strings, and an
// inbound broadcast that publishes complete lines read off the wire to any
// number of subscribers.
//
// Grounded on periph's experimental/host/sysfs UART wrapper (the
// os.OpenFile-backed Read/Write shape) and on the reader/writer task split
// in the original Odyssey's serial_handler.rs.
package broker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Transport is the physical connection a Broker multiplexes. A *goserial.Port
// opened by cmd/odyssey satisfies this, as does any test fake.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// TimeoutError is satisfied by read errors that mean only "the configured
// read deadline elapsed, no data was available". The reader task treats
// these as a prompt to poll again, never as a fatal condition.
type TimeoutError interface {
	error
	Timeout() bool
}

const inboundCapacity = 100

// Broker owns a Transport and runs its reader and writer tasks. It must be
// started with Run and is usable only while Run is executing.
type Broker struct {
	name      string
	transport Transport
	log       *logrus.Entry

	outbound chan string

	mu   sync.Mutex
	subs map[int]chan string
	next int
}

// New wraps transport. name is used only for logging and String().
func New(name string, transport Transport, log *logrus.Entry) *Broker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Broker{
		name:      name,
		transport: transport,
		log:       log.WithField("component", "broker"),
		outbound:  make(chan string, inboundCapacity),
		subs:      make(map[int]chan string),
	}
}

// String implements conn.Resource.
func (b *Broker) String() string { return b.name }

// Halt implements conn.Resource: it closes the underlying transport. Run's
// reader and writer tasks observe the resulting I/O error and exit.
func (b *Broker) Halt() error { return b.transport.Close() }

// Send enqueues an already-terminated command line for the writer task.
// It blocks only until the outbound queue has room or ctx is done.
func (b *Broker) Send(ctx context.Context, line string) error {
	select {
	case b.outbound <- line:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel that receives every complete inbound line from
// the moment of subscription onward, and a function to unsubscribe. The
// channel is buffered; a subscriber that falls behind silently misses lines
// rather than stalling the reader task — acceptable because the motion
// client always flushes stale lines before awaiting a fresh response.
func (b *Broker) Subscribe() (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan string, inboundCapacity)
	b.subs[id] = ch
	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

func (b *Broker) publish(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
			b.log.WithField("line", line).Debug("subscriber lagging, dropping line")
		}
	}
}

// Run starts the reader and writer tasks and blocks until one of them fails
// or ctx is cancelled. Both tasks exit at their next suspension point on
// cancellation. A failed transport is fatal: Run returns the first error
// encountered and the caller is expected to transition to Shutdown.
func (b *Broker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.runReader(gctx) })
	g.Go(func() error { return b.runWriter(gctx) })
	err := g.Wait()
	b.mu.Lock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
	return err
}

func (b *Broker) runReader(ctx context.Context) error {
	r := bufio.NewReader(b.transport)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			b.publish(line)
		}
		if err == nil {
			continue
		}

		var timeout TimeoutError
		if errors.As(err, &timeout) && timeout.Timeout() {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("broker: serial read failed: %w", err)
	}
}

func (b *Broker) runWriter(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-b.outbound:
			if !ok {
				return nil
			}
			if _, err := b.transport.Write([]byte(line)); err != nil {
				if errors.Is(err, syscall.EINTR) {
					continue
				}
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("broker: serial write failed: %w", err)
			}
		}
	}
}
