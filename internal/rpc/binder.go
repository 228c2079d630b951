package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/instrumentd/rig-core/internal/device"
)

// handlerFunc executes one bound method. The returned value is
// serialised into the response envelope; a nil value becomes an empty
// result.
type handlerFunc func(ctx context.Context, args map[string]json.RawMessage) (any, error)

// boundObject is one exposed device and its dispatch table.
type boundObject struct {
	name    string
	dev     device.Device
	methods map[string]handlerFunc
	observe func(object string, frame device.Frame, delivered bool)
}

// Role surfaces discovered at bind time. Devices expose whichever of
// these they implement; the dispatch table is fixed per object.
type imager interface {
	SensorShape() (int, int)
	ExposureTime() (float64, error)
	SetExposureTime(seconds float64) error
	GetBinning() (device.Binning, error)
	SetBinning(b device.Binning) error
	GetROI() (device.ROI, error)
	SetROI(r device.ROI) error
	Acquiring() bool
}

type emitter interface {
	GetIsOn() (bool, error)
	GetPower() (float64, error)
	SetPower(power float64) error
	GetSetPower() float64
	GetStatus(ctx context.Context) ([]string, error)
}

type positioner interface {
	NPositions() int
	GetPosition() (int, error)
	SetPosition(position int) error
}

type mover interface {
	AxisNames() []string
	Position() (map[string]float64, error)
	Limits() map[string]device.AxisLimits
	MoveTo(ctx context.Context, position map[string]float64) error
	MoveBy(ctx context.Context, delta map[string]float64) error
}

type shaper interface {
	NActuators() int
	ApplyPattern(ctx context.Context, pattern []float64) error
	QueuePatterns(patterns [][]float64) error
	QueuedPatterns() int
}

type triggerSupporter interface {
	Supported() []device.TriggerSpec
}

// bindObject builds the dispatch table for one device. Sub-devices of a
// controller are returned so the daemon can bind them under derived
// names.
func bindObject(name string, dev device.Device, observe func(string, device.Frame, bool)) *boundObject {
	b := &boundObject{
		name:    name,
		dev:     dev,
		methods: make(map[string]handlerFunc),
		observe: observe,
	}
	b.bindCore()
	b.bindCapabilities()
	b.bindRoles()
	return b
}

func (b *boundObject) bindCore() {
	dev := b.dev

	b.methods["initialize"] = func(ctx context.Context, _ map[string]json.RawMessage) (any, error) {
		return nil, dev.Initialize(ctx)
	}
	b.methods["enable"] = func(ctx context.Context, _ map[string]json.RawMessage) (any, error) {
		return nil, dev.Enable(ctx)
	}
	b.methods["disable"] = func(ctx context.Context, _ map[string]json.RawMessage) (any, error) {
		return nil, dev.Disable(ctx)
	}
	b.methods["shutdown"] = func(ctx context.Context, _ map[string]json.RawMessage) (any, error) {
		return nil, dev.Shutdown(ctx)
	}
	b.methods["state"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
		return dev.State(), nil
	}
	b.methods["is_alive"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
		return dev.IsAlive(), nil
	}

	b.methods["get_setting"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
		name, err := argString(args, "name")
		if err != nil {
			return nil, err
		}
		return dev.GetSetting(name)
	}
	b.methods["set_setting"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
		name, err := argString(args, "name")
		if err != nil {
			return nil, err
		}
		raw, ok := args["value"]
		if !ok {
			return nil, fmt.Errorf("%w: missing argument %q", device.ErrSettings, "value")
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("%w: decoding value: %w", device.ErrSettings, err)
		}
		return nil, dev.SetSetting(name, value)
	}
	b.methods["describe_setting"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
		name, err := argString(args, "name")
		if err != nil {
			return nil, err
		}
		return dev.DescribeSetting(name)
	}
	b.methods["describe_settings"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
		return dev.DescribeSettings(), nil
	}

	if ident, ok := dev.(device.Identifiable); ok {
		b.methods["get_id"] = func(ctx context.Context, _ map[string]json.RawMessage) (any, error) {
			return ident.GetID(ctx)
		}
	}
}

func (b *boundObject) bindCapabilities() {
	if tt, ok := b.dev.(device.TriggerTarget); ok {
		b.methods["trigger_spec"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return tt.TriggerSpec(), nil
		}
		b.methods["set_trigger"] = func(ctx context.Context, args map[string]json.RawMessage) (any, error) {
			ttype, err := argString(args, "type")
			if err != nil {
				return nil, err
			}
			tmode, err := argString(args, "mode")
			if err != nil {
				return nil, err
			}
			return nil, tt.SetTrigger(ctx, device.TriggerType(ttype), device.TriggerMode(tmode))
		}
		b.methods["trigger"] = func(ctx context.Context, _ map[string]json.RawMessage) (any, error) {
			return nil, tt.Trigger(ctx)
		}
	}
	if ts, ok := b.dev.(triggerSupporter); ok {
		b.methods["supported_triggers"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return ts.Supported(), nil
		}
	}

	if ds, ok := b.dev.(device.DataStreamer); ok {
		b.methods["set_client"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
			url, err := argString(args, "url")
			if err != nil {
				return nil, err
			}
			ds.SetClient(newPushSink(url, b.name, b.observe))
			return nil, nil
		}
		b.methods["push_client"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
			url, err := argString(args, "url")
			if err != nil {
				return nil, err
			}
			ds.PushClient(newPushSink(url, b.name, b.observe))
			return nil, nil
		}
		b.methods["pop_client"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			_, err := ds.PopClient()
			return nil, err
		}
	}
}

func (b *boundObject) bindRoles() {
	if im, ok := b.dev.(imager); ok {
		b.methods["sensor_shape"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			w, h := im.SensorShape()
			return map[string]int{"width": w, "height": h}, nil
		}
		b.methods["get_exposure_time"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return im.ExposureTime()
		}
		b.methods["set_exposure_time"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
			seconds, err := argFloat(args, "seconds")
			if err != nil {
				return nil, err
			}
			return nil, im.SetExposureTime(seconds)
		}
		b.methods["get_binning"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return im.GetBinning()
		}
		b.methods["set_binning"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
			var binning device.Binning
			if err := decodeArgs(args, &binning); err != nil {
				return nil, err
			}
			return nil, im.SetBinning(binning)
		}
		b.methods["get_roi"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return im.GetROI()
		}
		b.methods["set_roi"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
			var roi device.ROI
			if err := decodeArgs(args, &roi); err != nil {
				return nil, err
			}
			return nil, im.SetROI(roi)
		}
		b.methods["acquiring"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return im.Acquiring(), nil
		}
	}

	if em, ok := b.dev.(emitter); ok {
		b.methods["get_is_on"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return em.GetIsOn()
		}
		b.methods["get_power"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return em.GetPower()
		}
		b.methods["set_power"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
			power, err := argFloat(args, "power")
			if err != nil {
				return nil, err
			}
			return nil, em.SetPower(power)
		}
		b.methods["get_set_power"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return em.GetSetPower(), nil
		}
		b.methods["get_status"] = func(ctx context.Context, _ map[string]json.RawMessage) (any, error) {
			return em.GetStatus(ctx)
		}
	}

	if po, ok := b.dev.(positioner); ok {
		b.methods["n_positions"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return po.NPositions(), nil
		}
		b.methods["get_position"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return po.GetPosition()
		}
		b.methods["set_position"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
			position, err := argInt(args, "position")
			if err != nil {
				return nil, err
			}
			return nil, po.SetPosition(position)
		}
	}

	if mv, ok := b.dev.(mover); ok {
		b.methods["axis_names"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return mv.AxisNames(), nil
		}
		b.methods["position"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return mv.Position()
		}
		b.methods["limits"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return mv.Limits(), nil
		}
		b.methods["move_to"] = func(ctx context.Context, args map[string]json.RawMessage) (any, error) {
			target, err := argFloatMap(args, "position")
			if err != nil {
				return nil, err
			}
			return nil, mv.MoveTo(ctx, target)
		}
		b.methods["move_by"] = func(ctx context.Context, args map[string]json.RawMessage) (any, error) {
			delta, err := argFloatMap(args, "delta")
			if err != nil {
				return nil, err
			}
			return nil, mv.MoveBy(ctx, delta)
		}
	}

	if sh, ok := b.dev.(shaper); ok {
		b.methods["n_actuators"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return sh.NActuators(), nil
		}
		b.methods["apply_pattern"] = func(ctx context.Context, args map[string]json.RawMessage) (any, error) {
			var pattern []float64
			if err := argJSON(args, "pattern", &pattern); err != nil {
				return nil, err
			}
			return nil, sh.ApplyPattern(ctx, pattern)
		}
		b.methods["queue_patterns"] = func(_ context.Context, args map[string]json.RawMessage) (any, error) {
			var patterns [][]float64
			if err := argJSON(args, "patterns", &patterns); err != nil {
				return nil, err
			}
			return nil, sh.QueuePatterns(patterns)
		}
		b.methods["queued_patterns"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			return sh.QueuedPatterns(), nil
		}
	}

	if owner, ok := b.dev.(device.SubDeviceOwner); ok {
		b.methods["devices"] = func(_ context.Context, _ map[string]json.RawMessage) (any, error) {
			names := make([]string, 0, len(owner.Devices()))
			for sub := range owner.Devices() {
				names = append(names, b.name+"."+sub)
			}
			sort.Strings(names)
			return names, nil
		}
	}
}

func (b *boundObject) call(ctx context.Context, method string, args map[string]json.RawMessage) (any, error) {
	h, ok := b.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: object %q has no method %q", device.ErrNotFound, b.name, method)
	}
	return h(ctx, args)
}

// methodNames returns the sorted dispatch table, used by the daemon's
// object description endpoint.
func (b *boundObject) methodNames() []string {
	names := make([]string, 0, len(b.methods))
	for name := range b.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func argJSON(args map[string]json.RawMessage, name string, v any) error {
	raw, ok := args[name]
	if !ok {
		return fmt.Errorf("%w: missing argument %q", device.ErrSettings, name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decoding argument %q: %w", device.ErrSettings, name, err)
	}
	return nil
}

// decodeArgs unmarshals the whole argument object into a struct, for
// methods whose arguments mirror a wire type field for field.
func decodeArgs(args map[string]json.RawMessage, v any) error {
	buf, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: encoding arguments: %w", device.ErrSettings, err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("%w: decoding arguments: %w", device.ErrSettings, err)
	}
	return nil
}

func argString(args map[string]json.RawMessage, name string) (string, error) {
	var s string
	if err := argJSON(args, name, &s); err != nil {
		return "", err
	}
	return s, nil
}

func argFloat(args map[string]json.RawMessage, name string) (float64, error) {
	var f float64
	if err := argJSON(args, name, &f); err != nil {
		return 0, err
	}
	return f, nil
}

func argInt(args map[string]json.RawMessage, name string) (int, error) {
	var i int
	if err := argJSON(args, name, &i); err != nil {
		return 0, err
	}
	return i, nil
}

func argFloatMap(args map[string]json.RawMessage, name string) (map[string]float64, error) {
	m := make(map[string]float64)
	if err := argJSON(args, name, &m); err != nil {
		return nil, err
	}
	return m, nil
}
