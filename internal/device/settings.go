package device

import (
	"fmt"
	"sort"
)

// SettingType describes the value type of a setting.
type SettingType string

// Setting value types.
const (
	SettingInt    SettingType = "int"
	SettingFloat  SettingType = "float"
	SettingBool   SettingType = "bool"
	SettingString SettingType = "str"
	SettingEnum   SettingType = "enum"

	// SettingTuple is a structured value such as a binning pair or an
	// ROI rectangle. Validation is left to the setter.
	SettingTuple SettingType = "tuple"
)

// Setting declares one vendor-specific parameter. Getter is required;
// a nil Setter makes the setting readonly. The declared domain, if any,
// is enforced on every write.
type Setting struct {
	Name   string
	Type   SettingType
	Getter func() (any, error)
	Setter func(value any) error

	// Min/Max bound numeric settings when HasBounds is set.
	HasBounds bool
	Min       float64
	Max       float64

	// Values enumerates the permitted values for enum settings.
	Values []any
}

// SettingDescription is the metadata snapshot returned by DescribeSetting.
type SettingDescription struct {
	Name     string      `json:"name"`
	Type     SettingType `json:"type"`
	Readonly bool        `json:"readonly"`
	Min      *float64    `json:"min,omitempty"`
	Max      *float64    `json:"max,omitempty"`
	Values   []any       `json:"values,omitempty"`
}

// settingSet is the per-device name→accessor map. Mutation of the name set
// is construction-time only; value reads and writes go through the declared
// getter and setter.
type settingSet struct {
	byName map[string]Setting
}

func newSettingSet() *settingSet {
	return &settingSet{byName: make(map[string]Setting)}
}

func (s *settingSet) add(st Setting) error {
	if st.Name == "" {
		return fmt.Errorf("%w: setting name is empty", ErrSettings)
	}
	if st.Getter == nil {
		return fmt.Errorf("%w: setting %q has no getter", ErrSettings, st.Name)
	}
	if _, exists := s.byName[st.Name]; exists {
		return fmt.Errorf("%w: setting %q already declared", ErrSettings, st.Name)
	}
	s.byName[st.Name] = st
	return nil
}

func (s *settingSet) get(name string) (any, error) {
	st, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown setting %q", ErrSettings, name)
	}
	return st.Getter()
}

func (s *settingSet) set(name string, value any) error {
	st, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", ErrSettings, name)
	}
	if st.Setter == nil {
		return fmt.Errorf("%w: setting %q is readonly", ErrSettings, name)
	}
	if err := st.validate(value); err != nil {
		return err
	}
	return st.Setter(value)
}

func (s *settingSet) describe(name string) (SettingDescription, error) {
	st, ok := s.byName[name]
	if !ok {
		return SettingDescription{}, fmt.Errorf("%w: unknown setting %q", ErrSettings, name)
	}
	return st.description(), nil
}

func (s *settingSet) describeAll() []SettingDescription {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]SettingDescription, 0, len(names))
	for _, name := range names {
		out = append(out, s.byName[name].description())
	}
	return out
}

func (st Setting) description() SettingDescription {
	desc := SettingDescription{
		Name:     st.Name,
		Type:     st.Type,
		Readonly: st.Setter == nil,
		Values:   st.Values,
	}
	if st.HasBounds {
		minV, maxV := st.Min, st.Max
		desc.Min = &minV
		desc.Max = &maxV
	}
	return desc
}

// validate enforces the declared domain on a write.
func (st Setting) validate(value any) error {
	if len(st.Values) > 0 {
		for _, v := range st.Values {
			if valuesEqual(v, value) {
				return nil
			}
		}
		return fmt.Errorf("%w: %v is not a permitted value for %q", ErrSettings, value, st.Name)
	}
	if st.HasBounds {
		n, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("%w: %q expects a numeric value, got %T", ErrSettings, st.Name, value)
		}
		if n < st.Min || n > st.Max {
			return fmt.Errorf("%w: %v outside [%v %v] for %q", ErrSettings, value, st.Min, st.Max, st.Name)
		}
	}
	return nil
}

// asFloat widens any numeric value. JSON decoding hands settings values
// over as float64, local callers use native int types.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// valuesEqual compares enum members across the numeric widening that JSON
// decoding introduces.
func valuesEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}
