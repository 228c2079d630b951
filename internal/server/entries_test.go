package server

import (
	"strings"
	"testing"

	"github.com/instrumentd/rig-core/internal/infrastructure/config"
)

func testEntryRegistry() *Registry {
	r := NewRegistry()
	r.Register("test.cam", fakeFactory("cam"))
	r.RegisterFloating("test.cam_floating", fakeFloatingFactory())
	return r
}

func testEntryConfig() *config.Config {
	return &config.Config{
		Devices: []config.DeviceConfig{
			{Name: "cam-left", Driver: "test.cam", Host: "127.0.0.1", Port: 8100},
			{Name: "cam-right", Driver: "test.cam_floating", Host: "127.0.0.1", Port: 8101, UID: "SN042"},
		},
	}
}

func TestValidateEntries(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(cfg *config.Config) {},
		},
		{
			name: "unknown driver",
			mutate: func(cfg *config.Config) {
				cfg.Devices[0].Driver = "test.missing"
			},
			wantErr: "unknown driver",
		},
		{
			name: "floating without uid",
			mutate: func(cfg *config.Config) {
				cfg.Devices[1].UID = ""
			},
			wantErr: "requires uid",
		},
		{
			name: "fixed with uid",
			mutate: func(cfg *config.Config) {
				cfg.Devices[0].UID = "SN001"
			},
			wantErr: "only valid for floating",
		},
		{
			name: "address collision",
			mutate: func(cfg *config.Config) {
				cfg.Devices[1].Port = cfg.Devices[0].Port
			},
			wantErr: "share address",
		},
	}

	reg := testEntryRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testEntryConfig()
			tt.mutate(cfg)

			err := ValidateEntries(cfg, reg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateEntries() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateEntries() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
