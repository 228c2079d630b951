package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/instrumentd/rig-core/internal/device"
)

// Proxy is the client side of a bound object. It implements
// device.Device and device.TriggerTarget, so callers can hold a remote
// device through the same interfaces as a local one. Role methods
// beyond those surfaces go through Call.
//
// Application errors come back carrying their original sentinel, so
// errors.Is(err, device.ErrLifecycle) and friends behave as they would
// against a local device. Transport failures wrap
// device.ErrRemoteCall instead.
type Proxy struct {
	baseURL string
	object  string
	client  *http.Client
}

// NewProxy returns a proxy for the named object on a daemon at baseURL,
// e.g. NewProxy("http://127.0.0.1:7601", "camera").
func NewProxy(baseURL, object string) *Proxy {
	return &Proxy{
		baseURL: baseURL,
		object:  object,
		client:  &http.Client{},
	}
}

// Object returns the remote object name.
func (p *Proxy) Object() string { return p.object }

// Call invokes a remote method with named arguments, decoding the
// result into result when it is non-nil. It is the escape hatch for
// role methods not covered by the typed surface.
func (p *Proxy) Call(ctx context.Context, method string, args map[string]any, result any) error {
	req := request{}
	if len(args) > 0 {
		req.Args = make(map[string]json.RawMessage, len(args))
		for name, value := range args {
			raw, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("%w: encoding argument %q: %w", device.ErrRemoteCall, name, err)
			}
			req.Args[name] = raw
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %w", device.ErrRemoteCall, err)
	}

	url := fmt.Sprintf("%s/v1/objects/%s/%s", p.baseURL, p.object, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %w", device.ErrRemoteCall, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %w", device.ErrRemoteCall, p.object, method, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s.%s: unexpected status %s",
			device.ErrRemoteCall, p.object, method, httpResp.Status)
	}

	var resp response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("%w: %s.%s: decoding response: %w",
			device.ErrRemoteCall, p.object, method, err)
	}
	if !resp.OK {
		if sentinel := sentinelOf(resp.Kind); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, resp.Error)
		}
		return fmt.Errorf("%w: %s.%s: %s", device.ErrRemoteCall, p.object, method, resp.Error)
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%w: %s.%s: decoding result: %w",
				device.ErrRemoteCall, p.object, method, err)
		}
	}
	return nil
}

// Initialize implements device.Device.
func (p *Proxy) Initialize(ctx context.Context) error {
	return p.Call(ctx, "initialize", nil, nil)
}

// Enable implements device.Device.
func (p *Proxy) Enable(ctx context.Context) error {
	return p.Call(ctx, "enable", nil, nil)
}

// Disable implements device.Device.
func (p *Proxy) Disable(ctx context.Context) error {
	return p.Call(ctx, "disable", nil, nil)
}

// Shutdown implements device.Device.
func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.Call(ctx, "shutdown", nil, nil)
}

// State implements device.Device. A device that cannot be reached reads
// as uninitialized; use IsAlive to distinguish a dead link.
func (p *Proxy) State() device.State {
	var state device.State
	if err := p.Call(context.Background(), "state", nil, &state); err != nil {
		return device.StateUninitialized
	}
	return state
}

// IsAlive implements device.Device. An unreachable worker reads as not
// alive.
func (p *Proxy) IsAlive() bool {
	var alive bool
	if err := p.Call(context.Background(), "is_alive", nil, &alive); err != nil {
		return false
	}
	return alive
}

// GetID reports the remote device's hardware identity.
func (p *Proxy) GetID(ctx context.Context) (string, error) {
	var id string
	if err := p.Call(ctx, "get_id", nil, &id); err != nil {
		return "", err
	}
	return id, nil
}

// GetSetting implements device.Device.
func (p *Proxy) GetSetting(name string) (any, error) {
	var value any
	if err := p.Call(context.Background(), "get_setting", map[string]any{"name": name}, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// SetSetting implements device.Device.
func (p *Proxy) SetSetting(name string, value any) error {
	return p.Call(context.Background(), "set_setting", map[string]any{"name": name, "value": value}, nil)
}

// DescribeSetting implements device.Device.
func (p *Proxy) DescribeSetting(name string) (device.SettingDescription, error) {
	var desc device.SettingDescription
	if err := p.Call(context.Background(), "describe_setting", map[string]any{"name": name}, &desc); err != nil {
		return device.SettingDescription{}, err
	}
	return desc, nil
}

// DescribeSettings implements device.Device. An unreachable worker reads
// as an empty registry.
func (p *Proxy) DescribeSettings() []device.SettingDescription {
	var descs []device.SettingDescription
	if err := p.Call(context.Background(), "describe_settings", nil, &descs); err != nil {
		return nil
	}
	return descs
}

// TriggerSpec implements device.TriggerTarget.
func (p *Proxy) TriggerSpec() device.TriggerSpec {
	var spec device.TriggerSpec
	if err := p.Call(context.Background(), "trigger_spec", nil, &spec); err != nil {
		return device.TriggerSpec{}
	}
	return spec
}

// SetTrigger implements device.TriggerTarget.
func (p *Proxy) SetTrigger(ctx context.Context, ttype device.TriggerType, tmode device.TriggerMode) error {
	return p.Call(ctx, "set_trigger", map[string]any{"type": ttype, "mode": tmode}, nil)
}

// Trigger implements device.TriggerTarget.
func (p *Proxy) Trigger(ctx context.Context) error {
	return p.Call(ctx, "trigger", nil, nil)
}

// SetClientURL points the remote device's data stream at a frame
// receiver, replacing the current top of the client stack.
func (p *Proxy) SetClientURL(ctx context.Context, url string) error {
	return p.Call(ctx, "set_client", map[string]any{"url": url}, nil)
}

// PushClientURL pushes a frame receiver onto the remote client stack.
func (p *Proxy) PushClientURL(ctx context.Context, url string) error {
	return p.Call(ctx, "push_client", map[string]any{"url": url}, nil)
}

// PopClient pops the remote client stack, restoring the previous
// receiver.
func (p *Proxy) PopClient(ctx context.Context) error {
	return p.Call(ctx, "pop_client", nil, nil)
}

// SubDevices lists the object names of a remote controller's
// sub-devices. Each can be proxied with NewProxy against the same
// daemon.
func (p *Proxy) SubDevices(ctx context.Context) ([]string, error) {
	var names []string
	if err := p.Call(ctx, "devices", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}
