package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/floating"
	"github.com/instrumentd/rig-core/internal/infrastructure/config"
	"github.com/instrumentd/rig-core/internal/infrastructure/logging"
	"github.com/instrumentd/rig-core/internal/infrastructure/mqtt"
	"github.com/instrumentd/rig-core/internal/infrastructure/telemetry"
	"github.com/instrumentd/rig-core/internal/rpc"
)

// stateReportInterval is how often a worker samples device states for
// the announcement bus and telemetry. Only changed states are published.
const stateReportInterval = 5 * time.Second

// shutdownTimeout bounds device shutdown once the worker is told to
// stop. Hardware that has not released by then is abandoned to the
// process exit.
const shutdownTimeout = 15 * time.Second

// frameStats accumulates push counters for one streaming object.
type frameStats struct {
	delivered int64
	dropped   int64
}

// RunWorker serves one config entry: it constructs the entry's devices,
// binds them to an rpc daemon on the entry's address, and serves until
// ctx is cancelled. On the way out every device is shut down; shutdown
// errors are logged, never skipped past.
//
// Floating entries resolve their uid against the driver's candidate
// pool before serving. Resolution failure is fatal for the worker.
func RunWorker(ctx context.Context, cfg *config.Config, entryName string, reg *Registry, log *logging.Logger) error {
	entry, ok := cfg.Entry(entryName)
	if !ok {
		return fmt.Errorf("%w: entry %q not in config", device.ErrNotFound, entryName)
	}
	log = log.With("component", "worker", "entry", entry.Name)

	objects, err := buildObjects(ctx, reg, entry, log)
	if err != nil {
		return fmt.Errorf("building devices for %q: %w", entry.Name, err)
	}

	daemon := rpc.NewDaemon(cfg.Address(entry), log)
	for _, name := range sortedNames(objects) {
		daemon.Bind(name, objects[name])
	}

	w := &worker{
		entry:   entry,
		objects: objects,
		log:     log,
		states:  make(map[string]device.State, len(objects)),
		frames:  make(map[string]*frameStats),
		sinks:   make(map[string]*mqtt.FrameSink),
	}

	if cfg.MQTT.Enabled {
		w.mqtt, err = mqtt.ConnectWorker(cfg.MQTT, entry.Name)
		if err != nil {
			return fmt.Errorf("connecting worker to MQTT: %w", err)
		}
		defer w.mqtt.Close() //nolint:errcheck // LWT covers an unclean close
		w.mqtt.SetLogger(log)
		if entry.AnnounceFrames {
			w.pub = w.mqtt
		}
	}

	if cfg.Telemetry.Enabled {
		w.telem, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting worker telemetry: %w", err)
		}
		defer w.telem.Close() //nolint:errcheck // Close flushes; nothing to do on error
		w.telem.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
	}

	daemon.SetFrameObserver(w.observeFrame)
	if err := daemon.Start(ctx); err != nil {
		return fmt.Errorf("starting rpc daemon: %w", err)
	}
	log.Info("worker serving",
		"addr", cfg.Address(entry),
		"driver", entry.Driver,
		"objects", daemon.ObjectNames(),
	)

	reporterDone := make(chan struct{})
	go w.reportLoop(ctx, reporterDone)

	<-ctx.Done()
	log.Info("worker stopping")
	<-reporterDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	w.shutdownDevices(shutdownCtx)
	if err := daemon.Close(); err != nil {
		log.Error("closing rpc daemon", "error", err)
	}

	log.Info("worker stopped")
	return nil
}

// buildObjects constructs the devices an entry serves, resolving
// floating entries by uid.
func buildObjects(ctx context.Context, reg *Registry, entry config.DeviceConfig, log *logging.Logger) (map[string]device.Device, error) {
	if ff, ok := reg.FloatingFactory(entry.Driver); ok {
		resolved, err := floating.Resolve(ctx, ff(entry.Name, entry.Conf), entry.UID, log)
		if err != nil {
			return nil, err
		}
		return map[string]device.Device{entry.Name: resolved}, nil
	}

	factory, ok := reg.Factory(entry.Driver)
	if !ok {
		return nil, fmt.Errorf("%w: driver %q", device.ErrNotFound, entry.Driver)
	}
	objects, err := factory(ctx, entry.Name, entry.Conf)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("driver %q produced no devices", entry.Driver)
	}
	return objects, nil
}

// worker holds the running state of one served entry.
type worker struct {
	entry   config.DeviceConfig
	objects map[string]device.Device
	log     *logging.Logger
	mqtt    *mqtt.Client
	telem   *telemetry.Client

	// pub is set when the entry announces frames over the broker; sinks
	// holds one FrameSink per streaming object, created on first frame.
	pub   mqtt.Publisher
	sinks map[string]*mqtt.FrameSink

	mu     sync.Mutex
	states map[string]device.State
	frames map[string]*frameStats
}

// observeFrame is the daemon's frame push callback. It bumps the
// delivery counters and, when the entry announces frames, publishes the
// frame's metadata. Counter publication happens on the report ticker.
func (w *worker) observeFrame(object string, frame device.Frame, delivered bool) {
	w.mu.Lock()
	stats, ok := w.frames[object]
	if !ok {
		stats = &frameStats{}
		w.frames[object] = stats
	}
	if delivered {
		stats.delivered++
	} else {
		stats.dropped++
	}
	sink := w.frameSinkLocked(object)
	w.mu.Unlock()

	if delivered && sink != nil {
		sink.Accept(frame)
	}
}

// frameSinkLocked returns the announcement sink for an object, creating
// it on first use. Callers hold w.mu; nil means announcing is off.
func (w *worker) frameSinkLocked(object string) *mqtt.FrameSink {
	if w.pub == nil {
		return nil
	}
	sink, ok := w.sinks[object]
	if !ok {
		sink = mqtt.NewFrameSink(w.pub, object)
		sink.SetLogger(w.log)
		w.sinks[object] = sink
	}
	return sink
}

// reportLoop samples device states on a ticker and announces changes
// over MQTT and telemetry. Shutdown states are published separately by
// shutdownDevices once the loop has stopped.
func (w *worker) reportLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(stateReportInterval)
	defer ticker.Stop()

	w.report()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *worker) report() {
	for _, name := range sortedNames(w.objects) {
		state := w.objects[name].State()

		w.mu.Lock()
		changed := w.states[name] != state
		w.states[name] = state
		w.mu.Unlock()

		if !changed {
			continue
		}
		w.publishState(name, state)
	}
	w.publishFrameStats()
}

func (w *worker) publishState(object string, state device.State) {
	if w.telem != nil {
		w.telem.WriteDeviceState(object, string(state))
	}
	if w.mqtt == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"entry":  w.entry.Name,
		"object": object,
		"state":  string(state),
	})
	if err != nil {
		return
	}
	topic := mqtt.Topics{}.DeviceState(object)
	if err := w.mqtt.PublishRetained(topic, payload); err != nil {
		w.log.Warn("publishing device state", "object", object, "error", err)
	}
}

func (w *worker) publishFrameStats() {
	w.mu.Lock()
	snapshot := make(map[string]frameStats, len(w.frames))
	for object, stats := range w.frames {
		snapshot[object] = *stats
		*stats = frameStats{}
	}
	w.mu.Unlock()

	for object, stats := range snapshot {
		if stats.delivered == 0 && stats.dropped == 0 {
			continue
		}
		if w.telem != nil {
			w.telem.WriteAcquisitionStats(object, stats.delivered, stats.dropped)
		}
		if w.mqtt == nil {
			continue
		}
		payload, err := json.Marshal(map[string]any{
			"entry":     w.entry.Name,
			"object":    object,
			"delivered": stats.delivered,
			"dropped":   stats.dropped,
		})
		if err != nil {
			continue
		}
		topic := mqtt.Topics{}.DeviceFrameStats(object)
		if err := w.mqtt.Publish(topic, payload, 0, false); err != nil {
			w.log.Warn("publishing frame stats", "object", object, "error", err)
		}
	}
}

// shutdownDevices shuts down every top-level object. A controller shuts
// down its own sub-devices; shutdown is idempotent, so overlap between
// a controller and an independently bound sub-device is harmless.
func (w *worker) shutdownDevices(ctx context.Context) {
	for _, name := range sortedNames(w.objects) {
		dev := w.objects[name]
		if err := dev.Shutdown(ctx); err != nil {
			w.log.Error("shutting down device", "object", name, "error", err)
			continue
		}
		w.publishState(name, device.StateShutdown)
	}
}

func sortedNames(objects map[string]device.Device) []string {
	names := make([]string, 0, len(objects))
	for name := range objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
