package device

import (
	"context"
	"errors"
	"testing"
)

// settingFixture builds a Base with one writable bounded float, one
// readonly string, and one enum setting.
func settingFixture(t *testing.T) (*Base, *float64) {
	t.Helper()
	b := NewBase(Hooks{})

	exposure := 0.01
	if err := b.AddSetting(Setting{
		Name:      "exposure",
		Type:      SettingFloat,
		Getter:    func() (any, error) { return exposure, nil },
		Setter:    func(v any) error { exposure = v.(float64); return nil },
		HasBounds: true,
		Min:       0.001,
		Max:       10,
	}); err != nil {
		t.Fatalf("AddSetting(exposure) error = %v", err)
	}

	if err := b.AddSetting(Setting{
		Name:   "firmware",
		Type:   SettingString,
		Getter: func() (any, error) { return "v2.1", nil },
	}); err != nil {
		t.Fatalf("AddSetting(firmware) error = %v", err)
	}

	mode := "fast"
	if err := b.AddSetting(Setting{
		Name:   "readout",
		Type:   SettingEnum,
		Getter: func() (any, error) { return mode, nil },
		Setter: func(v any) error { mode = v.(string); return nil },
		Values: []any{"fast", "slow"},
	}); err != nil {
		t.Fatalf("AddSetting(readout) error = %v", err)
	}

	return b, &exposure
}

func TestSettingsGetSet(t *testing.T) {
	b, exposure := settingFixture(t)

	got, err := b.GetSetting("exposure")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if got != 0.01 {
		t.Errorf("GetSetting(exposure) = %v, want 0.01", got)
	}

	if err := b.SetSetting("exposure", 0.05); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	if *exposure != 0.05 {
		t.Errorf("exposure = %v after set, want 0.05", *exposure)
	}
}

func TestSettingsValidation(t *testing.T) {
	b, _ := settingFixture(t)

	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"unknown name", "gain", 1.0},
		{"below lower bound", "exposure", 0.0001},
		{"above upper bound", "exposure", 100.0},
		{"non-numeric for bounded", "exposure", "fast"},
		{"readonly", "firmware", "v3.0"},
		{"enum member not declared", "readout", "medium"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.SetSetting(tt.key, tt.value); !errors.Is(err, ErrSettings) {
				t.Errorf("SetSetting(%s, %v) error = %v, want ErrSettings", tt.key, tt.value, err)
			}
		})
	}
}

func TestSettingsSealedAfterInitialize(t *testing.T) {
	b, _ := settingFixture(t)
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	err := b.AddSetting(Setting{
		Name:   "late",
		Type:   SettingInt,
		Getter: func() (any, error) { return 0, nil },
	})
	if !errors.Is(err, ErrSettings) {
		t.Errorf("AddSetting() after Initialize error = %v, want ErrSettings", err)
	}
}

func TestSettingsDeclarationErrors(t *testing.T) {
	b := NewBase(Hooks{})

	if err := b.AddSetting(Setting{Type: SettingInt, Getter: func() (any, error) { return 0, nil }}); !errors.Is(err, ErrSettings) {
		t.Errorf("AddSetting with empty name error = %v, want ErrSettings", err)
	}
	if err := b.AddSetting(Setting{Name: "gain", Type: SettingInt}); !errors.Is(err, ErrSettings) {
		t.Errorf("AddSetting without getter error = %v, want ErrSettings", err)
	}

	ok := Setting{Name: "gain", Type: SettingInt, Getter: func() (any, error) { return 0, nil }}
	if err := b.AddSetting(ok); err != nil {
		t.Fatalf("AddSetting() error = %v", err)
	}
	if err := b.AddSetting(ok); !errors.Is(err, ErrSettings) {
		t.Errorf("duplicate AddSetting error = %v, want ErrSettings", err)
	}
}

func TestDescribeSettings(t *testing.T) {
	b, _ := settingFixture(t)

	desc, err := b.DescribeSetting("exposure")
	if err != nil {
		t.Fatalf("DescribeSetting() error = %v", err)
	}
	if desc.Readonly {
		t.Error("exposure described readonly")
	}
	if desc.Min == nil || *desc.Min != 0.001 || desc.Max == nil || *desc.Max != 10 {
		t.Errorf("exposure bounds = %v..%v, want 0.001..10", desc.Min, desc.Max)
	}

	desc, err = b.DescribeSetting("firmware")
	if err != nil {
		t.Fatalf("DescribeSetting() error = %v", err)
	}
	if !desc.Readonly {
		t.Error("firmware not described readonly")
	}
	if desc.Min != nil || desc.Max != nil {
		t.Error("firmware described with bounds")
	}

	all := b.DescribeSettings()
	if len(all) != 3 {
		t.Fatalf("DescribeSettings() count = %d, want 3", len(all))
	}
	// Deterministic name order.
	for i := 1; i < len(all); i++ {
		if all[i-1].Name > all[i].Name {
			t.Errorf("DescribeSettings() not sorted: %s before %s", all[i-1].Name, all[i].Name)
		}
	}

	if _, err := b.DescribeSetting("missing"); !errors.Is(err, ErrSettings) {
		t.Errorf("DescribeSetting(missing) error = %v, want ErrSettings", err)
	}
}

func TestSettingsEnumNumericWidening(t *testing.T) {
	b := NewBase(Hooks{})
	var bits int = 12
	if err := b.AddSetting(Setting{
		Name:   "bit_depth",
		Type:   SettingEnum,
		Getter: func() (any, error) { return bits, nil },
		Setter: func(v any) error {
			n, _ := asFloat(v)
			bits = int(n)
			return nil
		},
		Values: []any{12, 16},
	}); err != nil {
		t.Fatalf("AddSetting() error = %v", err)
	}

	// JSON decoding produces float64; 16.0 must match the declared 16.
	if err := b.SetSetting("bit_depth", 16.0); err != nil {
		t.Fatalf("SetSetting(bit_depth, 16.0) error = %v", err)
	}
	if bits != 16 {
		t.Errorf("bit_depth = %d, want 16", bits)
	}
	if err := b.SetSetting("bit_depth", 14.0); !errors.Is(err, ErrSettings) {
		t.Errorf("SetSetting(bit_depth, 14.0) error = %v, want ErrSettings", err)
	}
}
