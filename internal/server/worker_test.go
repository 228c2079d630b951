package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/floating"
	"github.com/instrumentd/rig-core/internal/infrastructure/config"
	"github.com/instrumentd/rig-core/internal/infrastructure/logging"
	"github.com/instrumentd/rig-core/internal/infrastructure/mqtt"
	"github.com/instrumentd/rig-core/internal/rpc"
)

// idDevice is a minimal identifiable device for floating tests.
type idDevice struct {
	*device.Base
	id string
}

func (d *idDevice) GetID(_ context.Context) (string, error) { return d.id, nil }

func TestRunWorkerUnknownEntry(t *testing.T) {
	cfg := &config.Config{}
	err := RunWorker(context.Background(), cfg, "ghost", NewRegistry(), logging.Default())
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("RunWorker(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestBuildObjectsFixedDriver(t *testing.T) {
	reg := NewRegistry()
	reg.Register("test.cam", fakeFactory("cam"))

	entry := config.DeviceConfig{Name: "cam-left", Driver: "test.cam"}
	objects, err := buildObjects(context.Background(), reg, entry, logging.Default())
	if err != nil {
		t.Fatalf("buildObjects() error = %v", err)
	}
	if len(objects) != 1 {
		t.Fatalf("buildObjects() count = %d, want 1", len(objects))
	}
	if _, ok := objects["cam-left"]; !ok {
		t.Errorf("objects keyed %v, want cam-left", sortedNames(objects))
	}
}

func TestBuildObjectsFloatingResolvesUID(t *testing.T) {
	serials := []string{"SN001", "SN002"}

	reg := NewRegistry()
	reg.RegisterFloating("test.cam_floating", func(_ string, _ map[string]any) floating.CandidateFactory {
		return func(_ context.Context, index int) (device.Identifiable, error) {
			if index >= len(serials) {
				return nil, floating.ErrPoolExhausted
			}
			return &idDevice{Base: device.NewBase(device.Hooks{}), id: serials[index]}, nil
		}
	})

	entry := config.DeviceConfig{Name: "cam-right", Driver: "test.cam_floating", UID: "SN002"}
	objects, err := buildObjects(context.Background(), reg, entry, logging.Default())
	if err != nil {
		t.Fatalf("buildObjects() error = %v", err)
	}

	dev, ok := objects["cam-right"].(device.Identifiable)
	if !ok {
		t.Fatal("resolved object is not identifiable")
	}
	id, err := dev.GetID(context.Background())
	if err != nil || id != "SN002" {
		t.Errorf("GetID() = %q, %v; want SN002", id, err)
	}

	entry.UID = "SN999"
	if _, err := buildObjects(context.Background(), reg, entry, logging.Default()); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("buildObjects() with absent uid error = %v, want ErrNotFound", err)
	}
}

func TestWorkerFrameStatsAccumulateAndReset(t *testing.T) {
	w := &worker{
		entry:  config.DeviceConfig{Name: "cam-left"},
		log:    logging.Default(),
		states: make(map[string]device.State),
		frames: make(map[string]*frameStats),
	}

	for i := 0; i < 4; i++ {
		w.observeFrame("cam-left", device.Frame{}, true)
	}
	w.observeFrame("cam-left", device.Frame{}, false)

	stats := w.frames["cam-left"]
	if stats.delivered != 4 || stats.dropped != 1 {
		t.Errorf("stats = %+v, want 4 delivered 1 dropped", *stats)
	}

	// Publishing snapshots and resets the counters. With no MQTT or
	// telemetry configured it only drains.
	w.publishFrameStats()
	if stats.delivered != 0 || stats.dropped != 0 {
		t.Errorf("stats after publish = %+v, want zeroed", *stats)
	}
}

// capturePublisher records frame announcements published by a worker.
type capturePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (p *capturePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestWorkerAnnouncesDeliveredFrames(t *testing.T) {
	pub := &capturePublisher{}
	w := &worker{
		entry:  config.DeviceConfig{Name: "cam-left", AnnounceFrames: true},
		log:    logging.Default(),
		pub:    pub,
		sinks:  make(map[string]*mqtt.FrameSink),
		states: make(map[string]device.State),
		frames: make(map[string]*frameStats),
	}

	frame := device.Frame{Index: 7, Width: 64, Height: 48, Timestamp: time.Now()}
	w.observeFrame("cam-left", frame, true)
	w.observeFrame("cam-left", device.Frame{Index: 8}, false)

	if len(pub.topics) != 1 {
		t.Fatalf("published %d announcements, want 1 (dropped frames are not announced)", len(pub.topics))
	}
	if want := "rigcore/device/cam-left/frames"; pub.topics[0] != want {
		t.Errorf("topic = %q, want %q", pub.topics[0], want)
	}

	var ann struct {
		Index  uint64 `json:"index"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}
	if err := json.Unmarshal(pub.payloads[0], &ann); err != nil {
		t.Fatalf("decoding announcement: %v", err)
	}
	if ann.Index != 7 || ann.Width != 64 || ann.Height != 48 {
		t.Errorf("announcement = %+v, want index 7 64x48", ann)
	}

	// Counters track both outcomes regardless of announcing.
	stats := w.frames["cam-left"]
	if stats.delivered != 1 || stats.dropped != 1 {
		t.Errorf("stats = %+v, want 1 delivered 1 dropped", *stats)
	}
}

func TestRunWorkerServesAndShutsDown(t *testing.T) {
	port := freePort(t)

	reg := NewRegistry()
	reg.Register("test.cam", fakeFactory("cam"))

	cfg := &config.Config{
		Devices: []config.DeviceConfig{
			{Name: "cam-left", Driver: "test.cam", Host: "127.0.0.1", Port: port},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunWorker(ctx, cfg, "cam-left", reg, logging.Default())
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForHealth(t, baseURL)

	proxy := rpc.NewProxy(baseURL, "cam-left")
	if err := proxy.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() over rpc error = %v", err)
	}
	if err := proxy.Enable(ctx); err != nil {
		t.Fatalf("Enable() over rpc error = %v", err)
	}
	if got := proxy.State(); got != device.StateEnabled {
		t.Errorf("State() = %s, want enabled", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunWorker() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("RunWorker() did not stop after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close() //nolint:errcheck // Listener only reserved the port
	return port
}

func waitForHealth(t *testing.T, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/v1/health")
		if err == nil {
			resp.Body.Close() //nolint:errcheck // Poll probe
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("worker health endpoint never came up")
}
