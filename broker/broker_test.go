package broker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport: Write appends to an outbound log,
// Read serves from a preloaded inbound buffer. A zero-valued fakeTimeout
// error is returned once the inbound buffer is exhausted, simulating the
// poll timeout a real serial driver would return.
type fakeTransport struct {
	mu       sync.Mutex
	inbound  *bytes.Buffer
	written  [][]byte
	timeouts int
	closed   bool
}

type fakeTimeout struct{}

func (fakeTimeout) Error() string { return "i/o timeout" }
func (fakeTimeout) Timeout() bool { return true }

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inbound.Len() == 0 {
		f.timeouts++
		if f.timeouts > 1000 {
			return 0, io.EOF
		}
		return 0, fakeTimeout{}
	}
	return f.inbound.Read(p)
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New("closed")
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) feed(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound.WriteString(s)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: &bytes.Buffer{}}
}

func TestBrokerPublishesCompleteLines(t *testing.T) {
	tr := newFakeTransport()
	tr.feed("ok\r\nMOVE COMPLETE\n")
	b := New("fake", tr, nil)

	sub, unsubscribe := b.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case line := <-sub:
			got = append(got, line)
		case <-timeout:
			t.Fatalf("timed out waiting for lines, got %v", got)
		}
	}
	cancel()
	<-done

	if got[0] != "ok" || got[1] != "MOVE COMPLETE" {
		t.Fatalf("unexpected lines: %v", got)
	}
}

func TestBrokerSendWritesToTransport(t *testing.T) {
	tr := newFakeTransport()
	b := New("fake", tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	if err := b.Send(ctx, "G0 Z10\r\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		tr.mu.Lock()
		n := len(tr.written)
		tr.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("write never observed")
		default:
		}
	}

	cancel()
	<-done

	if string(tr.written[0]) != "G0 Z10\r\n" {
		t.Fatalf("unexpected write: %q", tr.written[0])
	}
}

func TestBrokerStopsOnTransportFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.timeouts = 2000 // force an immediate EOF from Read
	b := New("fake", tr, nil)

	ctx := context.Background()
	err := b.Run(ctx)
	if err == nil {
		t.Fatal("expected broker to surface the transport failure")
	}
}

func TestSlowSubscriberDoesNotBlockReader(t *testing.T) {
	tr := newFakeTransport()
	for i := 0; i < inboundCapacity+10; i++ {
		tr.feed("ok\n")
	}
	b := New("fake", tr, nil)

	// A subscriber that never reads: its buffer fills after inboundCapacity
	// lines, and publish must drop the rest for it rather than block, so the
	// reader keeps draining the transport.
	_, unsubscribe := b.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = b.Run(ctx)

	tr.mu.Lock()
	remaining := tr.inbound.Len()
	tr.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("reader stopped with %d bytes unread", remaining)
	}
}
