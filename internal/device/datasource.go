package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fetchIdleDelay is how long the acquisition loop sleeps when the driver
// has no data ready.
const fetchIdleDelay = time.Millisecond

// FetchFunc polls the driver for the next produced item. A nil frame with
// a nil error means no data is ready yet.
type FetchFunc func(ctx context.Context) (*Frame, error)

// DataSource implements DataStreamer: the client-sink stack and acquisition
// loop used by streaming devices.
//
// Produced frames are delivered to the current top-of-stack sink from a
// single goroutine, in acquisition order, with no buffering outside the
// sink itself. The loop is started by the owning role's enable hook and
// stopped by its disable hook; Stop does not return until the loop has
// fully exited and the driver's buffers can be released.
type DataSource struct {
	mu    sync.Mutex
	stack []Sink

	fetch  FetchFunc
	logger Logger

	loopMu  sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// Logger is the logging interface for device internals. Compatible with
// logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// NewDataSource builds the capability around a driver poll function.
func NewDataSource(fetch FetchFunc) *DataSource {
	return &DataSource{
		fetch:  fetch,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used by the acquisition loop.
func (d *DataSource) SetLogger(logger Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
}

// SetClient replaces the top of the sink stack, or pushes when the stack
// is empty.
func (d *DataSource) SetClient(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.stack) == 0 {
		d.stack = append(d.stack, sink)
		return
	}
	d.stack[len(d.stack)-1] = sink
}

// PushClient pushes a sink for scoped, temporary redirection. The previous
// sink is restored by PopClient.
func (d *DataSource) PushClient(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stack = append(d.stack, sink)
}

// PopClient removes and returns the top-of-stack sink, restoring the
// previous one. Popping an empty stack is a caller error.
func (d *DataSource) PopClient() (Sink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.stack) == 0 {
		return nil, errors.New("device: client stack is empty")
	}
	top := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	return top, nil
}

// client returns the current top-of-stack sink, or nil when no client is
// attached.
func (d *DataSource) client() Sink {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.stack) == 0 {
		return nil
	}
	return d.stack[len(d.stack)-1]
}

// Acquiring reports whether the acquisition loop is running.
func (d *DataSource) Acquiring() bool {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	return d.running
}

// Start launches the acquisition loop. Called by the owning role's enable
// hook; starting an already-running loop is an error so the acquiring ⇒
// enabled invariant cannot be broken by a stray hook call.
func (d *DataSource) Start(ctx context.Context) error {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	if d.running {
		return fmt.Errorf("%w: acquisition already running", ErrLifecycle)
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.running = true
	go d.loop(ctx, d.stop, d.done)
	return nil
}

// Stop halts the acquisition loop and waits for it to exit. Safe to call
// when the loop is not running.
func (d *DataSource) Stop() {
	d.loopMu.Lock()
	if !d.running {
		d.loopMu.Unlock()
		return
	}
	stop, done := d.stop, d.done
	d.running = false
	d.loopMu.Unlock()

	close(stop)
	<-done
}

// loop polls the driver and hands each frame to the current client. A
// fetch error is logged and polling continues; the driver decides whether
// the condition is fatal by failing IsAlive.
func (d *DataSource) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		frame, err := d.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("fetching frame", "error", err)
			// Back off as on an empty poll so a broken driver does not
			// spin the loop flat out.
			time.Sleep(fetchIdleDelay)
			continue
		}
		if frame == nil {
			time.Sleep(fetchIdleDelay)
			continue
		}
		if sink := d.client(); sink != nil {
			sink.Accept(*frame)
		}
	}
}
