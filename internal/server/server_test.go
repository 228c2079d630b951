package server

import (
	"testing"

	"github.com/instrumentd/rig-core/internal/infrastructure/logging"
)

func newStatusServer(t *testing.T) *Server {
	t.Helper()
	return &Server{
		log:          logging.Default().With("component", "server"),
		brokerStatus: make(map[string]string),
	}
}

func TestOnWorkerStatusTracksBrokerLiveness(t *testing.T) {
	s := newStatusServer(t)

	online := []byte(`{"status":"online","client_id":"rigcore-worker-cam-left"}`)
	if err := s.onWorkerStatus("rigcore/worker/cam-left/status", online); err != nil {
		t.Fatalf("onWorkerStatus(online) error = %v", err)
	}
	if got := s.workerBrokerStatus("cam-left"); got != "online" {
		t.Errorf("broker status = %q, want online", got)
	}

	// The broker posts the LWT payload when the worker dies without
	// disconnecting; it must overwrite the online record.
	lwt := []byte(`{"status":"offline","reason":"unexpected_disconnect"}`)
	if err := s.onWorkerStatus("rigcore/worker/cam-left/status", lwt); err != nil {
		t.Fatalf("onWorkerStatus(lwt) error = %v", err)
	}
	if got := s.workerBrokerStatus("cam-left"); got != "offline" {
		t.Errorf("broker status = %q, want offline", got)
	}

	if got := s.workerBrokerStatus("never-seen"); got != "" {
		t.Errorf("broker status for unknown entry = %q, want empty", got)
	}
}

func TestOnWorkerStatusRejectsMalformedMessages(t *testing.T) {
	s := newStatusServer(t)

	if err := s.onWorkerStatus("rigcore/system/status", []byte(`{"status":"online"}`)); err == nil {
		t.Error("system topic should be rejected")
	}
	if err := s.onWorkerStatus("rigcore/worker/cam-left/status", []byte(`not json`)); err == nil {
		t.Error("malformed payload should be rejected")
	}
	if err := s.onWorkerStatus("rigcore/worker/cam-left/status", []byte(`{}`)); err == nil {
		t.Error("payload without a status field should be rejected")
	}
	if len(s.brokerStatus) != 0 {
		t.Errorf("brokerStatus has %d entries after rejected messages", len(s.brokerStatus))
	}
}

func TestEntryFromStatusTopic(t *testing.T) {
	tests := []struct {
		topic     string
		wantEntry string
		wantOk    bool
	}{
		{"rigcore/worker/cam-left/status", "cam-left", true},
		{"rigcore/worker/stage/status", "stage", true},
		{"rigcore/system/status", "", false},
		{"rigcore/worker//status", "", false},
		{"rigcore/worker/a/b/status", "", false},
		{"rigcore/worker/cam-left/state", "", false},
	}
	for _, tt := range tests {
		entry, ok := entryFromStatusTopic(tt.topic)
		if ok != tt.wantOk || entry != tt.wantEntry {
			t.Errorf("entryFromStatusTopic(%q) = (%q, %v), want (%q, %v)",
				tt.topic, entry, ok, tt.wantEntry, tt.wantOk)
		}
	}
}
