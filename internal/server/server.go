package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/infrastructure/config"
	"github.com/instrumentd/rig-core/internal/infrastructure/database"
	"github.com/instrumentd/rig-core/internal/infrastructure/logging"
	"github.com/instrumentd/rig-core/internal/infrastructure/mqtt"
	"github.com/instrumentd/rig-core/internal/infrastructure/telemetry"
	"github.com/instrumentd/rig-core/internal/process"
)

// workerHealthInterval is how often the parent probes each worker's rpc
// health endpoint.
const workerHealthInterval = 10 * time.Second

// statusReadTimeout bounds status endpoint request reads.
const statusReadTimeout = 10 * time.Second

// eventHistoryLimit caps the events returned per entry on the status
// endpoint.
const eventHistoryLimit = 50

// Server is the parent device-server process. It spawns one worker
// process per config entry, supervises them, persists their status, and
// serves an operator status endpoint.
type Server struct {
	cfg     *config.Config
	cfgPath string
	log     *logging.Logger
	reg     *Registry

	db       *database.DB
	repo     *StatusRepository
	mqtt     *mqtt.Client
	telem    *telemetry.Client
	managers map[string]*process.Manager

	// brokerStatus holds the last status payload seen on each worker's
	// status topic, including LWT "offline" messages the broker emits
	// when a worker dies without disconnecting.
	brokerMu     sync.Mutex
	brokerStatus map[string]string

	httpServer *http.Server
}

// New builds a server from validated configuration. cfgPath is passed
// through to workers so they load the same file.
func New(cfg *config.Config, cfgPath string, reg *Registry, log *logging.Logger) (*Server, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if err := ValidateEntries(cfg, reg); err != nil {
		return nil, fmt.Errorf("validating entries: %w", err)
	}
	return &Server{
		cfg:          cfg,
		cfgPath:      cfgPath,
		log:          log.With("component", "server"),
		reg:          reg,
		managers:     make(map[string]*process.Manager, len(cfg.Devices)),
		brokerStatus: make(map[string]string, len(cfg.Devices)),
	}, nil
}

// Run starts everything and blocks until ctx is cancelled, then tears
// down in reverse order. It is the whole parent-mode lifetime.
func (s *Server) Run(ctx context.Context) error {
	db, err := database.Open(database.Config{
		Path:        s.cfg.Database.Path,
		WALMode:     s.cfg.Database.WALMode,
		BusyTimeout: s.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	s.db = db
	defer func() {
		if closeErr := s.db.Close(); closeErr != nil {
			s.log.Error("closing database", "error", closeErr)
		}
	}()

	if err := s.db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	s.repo = NewStatusRepository(s.db)
	s.log.Info("database ready", "path", s.cfg.Database.Path)

	if s.cfg.MQTT.Enabled {
		s.mqtt, err = mqtt.Connect(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer s.mqtt.Close() //nolint:errcheck // LWT covers an unclean close
		s.mqtt.SetLogger(s.log)
		s.log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", s.cfg.MQTT.Broker.Host, s.cfg.MQTT.Broker.Port))

		// Workers publish online/offline on their status topics and the
		// broker posts their LWT there. Folding that into the status API
		// catches deaths between process-level health probes.
		topic := mqtt.Topics{}.AllWorkerStatus()
		if err := s.mqtt.Subscribe(topic, byte(s.cfg.MQTT.QoS), s.onWorkerStatus); err != nil {
			s.log.Warn("subscribing to worker status", "topic", topic, "error", err)
		}
	}

	if s.cfg.Telemetry.Enabled {
		s.telem, err = telemetry.Connect(s.cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting telemetry: %w", err)
		}
		defer s.telem.Close() //nolint:errcheck // Close flushes; nothing to do on error
		s.telem.SetOnError(func(err error) {
			s.log.Error("telemetry write error", "error", err)
		})
		s.log.Info("telemetry connected", "url", s.cfg.Telemetry.URL)
	}

	if err := s.startWorkers(ctx); err != nil {
		return err
	}

	s.startStatusServer()
	s.log.Info("device server running",
		"entries", len(s.cfg.Devices),
		"status_port", s.cfg.Server.StatusPort,
	)

	<-ctx.Done()
	s.log.Info("shutdown signal received")

	s.stopStatusServer()
	s.stopWorkers()

	s.log.Info("device server stopped")
	return nil
}

// startWorkers spawns one managed process per entry. A worker that
// fails to spawn aborts startup; already started workers are stopped by
// the caller's teardown path.
func (s *Server) startWorkers(ctx context.Context) error {
	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own binary: %w", err)
	}

	for _, entry := range s.cfg.Devices {
		mgr := s.newWorkerManager(bin, entry)
		s.managers[entry.Name] = mgr

		if err := mgr.Start(ctx); err != nil {
			s.stopWorkers()
			return fmt.Errorf("starting worker %q: %w", entry.Name, err)
		}
		s.log.Info("worker spawned", "entry", entry.Name, "pid", mgr.PID())
	}
	return nil
}

func (s *Server) newWorkerManager(bin string, entry config.DeviceConfig) *process.Manager {
	cfg := process.DefaultConfig(entry.Name, bin,
		[]string{"worker", "--config", s.cfgPath, "--entry", entry.Name})
	cfg.RestartOnFailure = entry.RestartOnFailure
	cfg.GracefulTimeout = s.cfg.GracefulTimeout()
	cfg.HealthCheckInterval = workerHealthInterval
	cfg.HealthCheckFunc = workerHealthCheck(s.cfg.Address(entry))

	cfg.OnStart = func() {
		s.recordWorker(entry, process.StatusRunning, "")
	}
	cfg.OnStop = func(err error) {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		s.recordWorker(entry, process.StatusStopped, detail)
	}
	cfg.OnRestart = func(attempt int) {
		s.log.Warn("restarting worker", "entry", entry.Name, "attempt", attempt)
		s.recordWorker(entry, process.StatusStarting, fmt.Sprintf("restart attempt %d", attempt))
	}

	mgr := process.NewManager(cfg)
	mgr.SetLogger(s.log.With("entry", entry.Name))
	return mgr
}

// recordWorker persists a worker status change and mirrors it to
// telemetry. It runs on its own context: status changes during shutdown
// still have to reach the database after the run context is cancelled.
// Persistence failures are logged; supervision continues.
func (s *Server) recordWorker(entry config.DeviceConfig, status process.Status, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mgr := s.managers[entry.Name]
	rec := WorkerRecord{
		Entry:     entry.Name,
		Driver:    entry.Driver,
		Status:    string(status),
		LastError: detail,
	}
	if mgr != nil {
		rec.PID = mgr.PID()
		rec.Restarts = mgr.RestartCount()
	}

	if err := s.repo.UpsertWorker(ctx, rec); err != nil {
		s.log.Error("persisting worker status", "entry", entry.Name, "error", err)
	}
	if err := s.repo.RecordEvent(ctx, entry.Name, rec.Status, detail); err != nil {
		s.log.Error("persisting worker event", "entry", entry.Name, "error", err)
	}
	if s.telem != nil {
		uptime := time.Duration(0)
		if mgr != nil {
			uptime = mgr.Uptime()
		}
		s.telem.WriteWorkerStats(entry.Name, rec.Status, rec.Restarts, uptime.Seconds())
	}
}

// onWorkerStatus records broker-side worker liveness. The payload is
// the status JSON published by the worker's client, or its LWT.
func (s *Server) onWorkerStatus(topic string, payload []byte) error {
	entry, ok := entryFromStatusTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected worker status topic %q", topic)
	}
	var msg struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding worker status for %q: %w", entry, err)
	}
	if msg.Status == "" {
		return fmt.Errorf("worker status for %q has no status field", entry)
	}

	s.brokerMu.Lock()
	s.brokerStatus[entry] = msg.Status
	s.brokerMu.Unlock()

	if msg.Status == "offline" {
		s.log.Warn("worker reported offline by broker", "entry", entry)
	}
	return nil
}

// entryFromStatusTopic extracts the entry name from a worker status
// topic of the form rigcore/worker/{entry}/status.
func entryFromStatusTopic(topic string) (string, bool) {
	rest, found := strings.CutPrefix(topic, mqtt.TopicPrefixWorker+"/")
	if !found {
		return "", false
	}
	entry, found := strings.CutSuffix(rest, "/status")
	if !found || entry == "" || strings.Contains(entry, "/") {
		return "", false
	}
	return entry, true
}

// workerBrokerStatus returns the last broker-side status seen for an
// entry, or "" when none has arrived.
func (s *Server) workerBrokerStatus(entry string) string {
	s.brokerMu.Lock()
	defer s.brokerMu.Unlock()
	return s.brokerStatus[entry]
}

// stopWorkers stops all workers in parallel. Each stop escalates from
// SIGTERM to SIGKILL on its own timer.
func (s *Server) stopWorkers() {
	var wg sync.WaitGroup
	for name, mgr := range s.managers {
		wg.Add(1)
		go func(name string, mgr *process.Manager) {
			defer wg.Done()
			if err := mgr.Stop(); err != nil {
				s.log.Error("stopping worker", "entry", name, "error", err)
			}
		}(name, mgr)
	}
	wg.Wait()
}

// workerHealthCheck probes a worker's rpc daemon health endpoint.
func workerHealthCheck(addr string) func(ctx context.Context) error {
	url := "http://" + addr + "/v1/health"
	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health endpoint returned %s", resp.Status)
		}
		return nil
	}
}

// startStatusServer serves the operator endpoints on the status port.
func (s *Server) startStatusServer() {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.StatusPort))
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.statusRouter(),
		ReadTimeout: statusReadTimeout,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server", "error", err)
		}
	}()
	s.log.Info("status server listening", "addr", addr)
}

func (s *Server) stopStatusServer() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulTimeout())
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("stopping status server", "error", err)
	}
}

func (s *Server) statusRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/workers", s.handleListWorkers)
	r.Get("/v1/workers/{entry}", s.handleWorker)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// workerView joins live supervision stats, the last broker-side status
// and the persisted record.
type workerView struct {
	process.Stats
	BrokerStatus string        `json:"broker_status,omitempty"`
	Persisted    *WorkerRecord `json:"persisted,omitempty"`
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	records, err := s.repo.Workers(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	byEntry := make(map[string]*WorkerRecord, len(records))
	for i := range records {
		byEntry[records[i].Entry] = &records[i]
	}

	views := make([]workerView, 0, len(s.cfg.Devices))
	for _, entry := range s.cfg.Devices {
		view := workerView{
			BrokerStatus: s.workerBrokerStatus(entry.Name),
			Persisted:    byEntry[entry.Name],
		}
		if mgr, ok := s.managers[entry.Name]; ok {
			view.Stats = mgr.Stats()
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	entry := chi.URLParam(r, "entry")

	rec, err := s.repo.Worker(r.Context(), entry)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	events, err := s.repo.Events(r.Context(), entry, eventHistoryLimit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	view := struct {
		workerView
		Events []DeviceEvent `json:"events"`
	}{Events: events}
	view.Persisted = &rec
	view.BrokerStatus = s.workerBrokerStatus(entry)
	if mgr, ok := s.managers[entry]; ok {
		view.Stats = mgr.Stats()
	}
	writeJSON(w, http.StatusOK, view)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}
