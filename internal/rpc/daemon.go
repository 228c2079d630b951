package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// calls to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Daemon exposes bound devices over HTTP. One daemon runs per worker
// process, serving all devices hosted by that worker.
//
// The daemon follows the same lifecycle pattern as the other long-lived
// components:
//
//	d := rpc.NewDaemon(addr, logger)
//	d.Bind("camera", cam)
//	d.Start(ctx)
//	defer d.Close()
type Daemon struct {
	addr   string
	logger *logging.Logger

	mu       sync.RWMutex
	objects  map[string]*boundObject
	observer FrameObserver

	server *http.Server
}

// FrameObserver is notified after every outbound frame push, whether or
// not the receiver took it. It runs on the acquisition goroutine, so it
// must be fast.
type FrameObserver func(object string, frame device.Frame, delivered bool)

// SetFrameObserver installs the observer. Call before Start; it applies
// to frames pushed after the call.
func (d *Daemon) SetFrameObserver(obs FrameObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = obs
}

func (d *Daemon) observeFrame(object string, frame device.Frame, delivered bool) {
	d.mu.RLock()
	obs := d.observer
	d.mu.RUnlock()
	if obs != nil {
		obs(object, frame, delivered)
	}
}

// NewDaemon creates a daemon that will listen on addr once started.
func NewDaemon(addr string, logger *logging.Logger) *Daemon {
	if logger == nil {
		logger = logging.Default()
	}
	return &Daemon{
		addr:    addr,
		logger:  logger.With("component", "rpc"),
		objects: make(map[string]*boundObject),
	}
}

// Bind exposes dev under the given object name. A controller's
// sub-devices are bound as well, under "name.sub". Rebinding a name
// replaces the previous object.
func (d *Daemon) Bind(name string, dev device.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindLocked(name, dev)
}

func (d *Daemon) bindLocked(name string, dev device.Device) {
	d.objects[name] = bindObject(name, dev, d.observeFrame)
	if owner, ok := dev.(device.SubDeviceOwner); ok {
		for sub, subDev := range owner.Devices() {
			d.bindLocked(name+"."+sub, subDev)
		}
	}
}

// ObjectNames returns the bound object names, sorted.
func (d *Daemon) ObjectNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.objects))
	for name := range d.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler builds the HTTP routes. Exposed separately so tests can serve
// the daemon without a listener.
func (d *Daemon) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(d.requestIDMiddleware)
	r.Use(d.loggingMiddleware)
	r.Use(d.recoveryMiddleware)

	r.Get("/v1/health", d.handleHealth)
	r.Get("/v1/objects", d.handleListObjects)
	r.Get("/v1/objects/{object}", d.handleDescribeObject)
	r.Post("/v1/objects/{object}/{method}", d.handleCall)

	return r
}

// Start begins listening for calls in a background goroutine.
func (d *Daemon) Start(ctx context.Context) error {
	d.server = &http.Server{
		Addr:              d.addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		d.logger.Info("rpc daemon listening", "address", d.addr, "objects", d.ObjectNames())
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("rpc daemon error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts the daemon down. Bound devices are not touched;
// the worker shuts them down separately.
func (d *Daemon) Close() error {
	if d.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	d.logger.Info("rpc daemon shutting down")
	if err := d.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down rpc daemon: %w", err)
	}
	return nil
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, map[string]any{"status": "ok", "objects": d.ObjectNames()})
}

func (d *Daemon) handleListObjects(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, d.ObjectNames())
}

func (d *Daemon) handleDescribeObject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "object")
	d.mu.RLock()
	obj, ok := d.objects[name]
	d.mu.RUnlock()
	if !ok {
		writeCallError(w, fmt.Errorf("%w: no object %q", device.ErrNotFound, name))
		return
	}
	writeResult(w, map[string]any{
		"name":    obj.name,
		"state":   obj.dev.State(),
		"methods": obj.methodNames(),
	})
}

func (d *Daemon) handleCall(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "object")
	method := chi.URLParam(r, "method")

	d.mu.RLock()
	obj, ok := d.objects[name]
	d.mu.RUnlock()
	if !ok {
		writeCallError(w, fmt.Errorf("%w: no object %q", device.ErrNotFound, name))
		return
	}

	var req request
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeCallError(w, fmt.Errorf("%w: malformed request body: %w", device.ErrSettings, err))
			return
		}
	}

	result, err := obj.call(r.Context(), method, req.Args)
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeResult(w, result)
}

// writeResult writes a success envelope. Call errors always travel in
// the envelope with status 200; non-200 statuses are reserved for
// transport level failures.
func writeResult(w http.ResponseWriter, result any) {
	resp := response{OK: true}
	if result != nil {
		buf, err := json.Marshal(result)
		if err != nil {
			writeCallError(w, fmt.Errorf("encoding result: %w", err))
			return
		}
		resp.Result = buf
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	json.NewEncoder(w).Encode(resp)
}

func writeCallError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	json.NewEncoder(w).Encode(response{
		OK:    false,
		Error: err.Error(),
		Kind:  kindOf(err),
	})
}

// requestIDMiddleware attaches a request ID for log correlation,
// generating one when the caller did not send X-Request-ID.
func (d *Daemon) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (d *Daemon) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		d.logger.Debug("rpc call",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", w.Header().Get("X-Request-ID"),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (d *Daemon) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error("panic in rpc handler", "panic", rec, "path", r.URL.Path)
				writeCallError(w, fmt.Errorf("%w: internal panic", device.ErrDeviceFault))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
