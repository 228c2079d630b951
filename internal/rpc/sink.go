package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/instrumentd/rig-core/internal/device"
)

// framePushTimeout bounds one frame delivery. A stalled receiver blocks
// the acquisition loop by design; the timeout turns a dead receiver into
// a dropped frame instead of a wedged worker.
const framePushTimeout = 5 * time.Second

// pushSink delivers frames to a remote SinkServer over HTTP. It
// implements device.Sink, so it slots into a DataStreamer's client stack
// like any in-process sink.
type pushSink struct {
	url     string
	object  string
	client  *http.Client
	logger  device.Logger
	observe func(object string, frame device.Frame, delivered bool)
}

func newPushSink(url, object string, observe func(string, device.Frame, bool)) *pushSink {
	return &pushSink{
		url:     url,
		object:  object,
		client:  &http.Client{Timeout: framePushTimeout},
		observe: observe,
	}
}

// URL returns the receiver endpoint this sink delivers to.
func (s *pushSink) URL() string { return s.url }

// Accept implements device.Sink. Delivery is synchronous; the caller's
// ordering guarantee holds because Accept does not return until the
// receiver has acknowledged the frame or the push has failed.
func (s *pushSink) Accept(frame device.Frame) {
	body, err := json.Marshal(encodeFrame(frame))
	if err != nil {
		s.logError("encoding frame", err)
		s.observed(frame, false)
		return
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logError("pushing frame", err)
		s.observed(frame, false)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		s.logError("pushing frame", fmt.Errorf("receiver returned %s", resp.Status))
		s.observed(frame, false)
		return
	}
	s.observed(frame, true)
}

func (s *pushSink) observed(frame device.Frame, delivered bool) {
	if s.observe != nil {
		s.observe(s.object, frame, delivered)
	}
}

func (s *pushSink) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, "url", s.url, "error", err)
	}
}

// SinkServer receives pushed frames and hands them to a local sink. The
// caller registers its URL with the remote device's set_client or
// push_client method.
type SinkServer struct {
	sink   device.Sink
	server *http.Server
	addr   string
}

// NewSinkServer creates a frame receiver listening on addr. Frames are
// delivered to sink in arrival order from a single connection handler at
// a time; the remote side pushes sequentially.
func NewSinkServer(addr string, sink device.Sink) *SinkServer {
	s := &SinkServer{sink: sink, addr: addr}

	r := chi.NewRouter()
	r.Post("/v1/frames", s.handleFrame)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// URL returns the endpoint to register with the remote device.
func (s *SinkServer) URL() string {
	return fmt.Sprintf("http://%s/v1/frames", s.addr)
}

// Handler exposes the receiver routes, for serving on an existing
// listener.
func (s *SinkServer) Handler() http.Handler { return s.server.Handler }

// Start begins listening in a background goroutine.
func (s *SinkServer) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Listener failure surfaces on the remote side as push errors.
			_ = err
		}
	}()
}

// Close shuts the receiver down, waiting briefly for in-flight frames.
func (s *SinkServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), framePushTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *SinkServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	var wf wireFrame
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		http.Error(w, "malformed frame", http.StatusBadRequest)
		return
	}
	frame, err := decodeFrame(wf)
	if err != nil {
		http.Error(w, "malformed frame data", http.StatusBadRequest)
		return
	}
	s.sink.Accept(frame)
	w.WriteHeader(http.StatusNoContent)
}
