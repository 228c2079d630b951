package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeCameraDriver is a minimal in-memory CameraDriver backed by a fixed
// sensor shape.
type fakeCameraDriver struct {
	mu       sync.Mutex
	width    int
	height   int
	exposure float64
	binning  Binning
	roi      ROI
}

func newFakeCameraDriver(width, height int) *fakeCameraDriver {
	return &fakeCameraDriver{
		width:   width,
		height:  height,
		binning: Binning{H: 1, V: 1},
		roi:     ROI{Width: width, Height: height},
	}
}

func (d *fakeCameraDriver) Initialize(context.Context) error       { return nil }
func (d *fakeCameraDriver) Shutdown(context.Context) error         { return nil }
func (d *fakeCameraDriver) Alive() bool                            { return true }
func (d *fakeCameraDriver) StartAcquisition(context.Context) error { return nil }
func (d *fakeCameraDriver) AbortAcquisition(context.Context) error { return nil }

func (d *fakeCameraDriver) FetchFrame(context.Context) (*Frame, error) {
	return nil, nil
}

func (d *fakeCameraDriver) ExposureTime() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exposure, nil
}

func (d *fakeCameraDriver) SetExposureTime(seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exposure = seconds
	return nil
}

func (d *fakeCameraDriver) SensorShape() (int, int) { return d.width, d.height }

func (d *fakeCameraDriver) Binning() (Binning, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.binning, nil
}

func (d *fakeCameraDriver) SetBinning(b Binning) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.binning = b
	return nil
}

func (d *fakeCameraDriver) ROI() (ROI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roi, nil
}

func (d *fakeCameraDriver) SetROI(r ROI) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.Width < 1 || r.Height < 1 {
		return errors.New("empty region")
	}
	d.roi = r
	return nil
}

func (d *fakeCameraDriver) SupportedTriggers() []TriggerSpec {
	return []TriggerSpec{{Type: TriggerSoftware, Mode: TriggerOnce}}
}

func (d *fakeCameraDriver) ArmTrigger(context.Context, TriggerSpec) error { return nil }
func (d *fakeCameraDriver) FireTrigger(context.Context) error             { return nil }

func newTestCamera(t *testing.T, width, height int) (*Camera, *fakeCameraDriver) {
	t.Helper()
	driver := newFakeCameraDriver(width, height)
	cam, err := NewCamera(driver)
	if err != nil {
		t.Fatalf("NewCamera() error = %v", err)
	}
	if err := cam.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return cam, driver
}

func TestCameraDeclaresStandardSettings(t *testing.T) {
	cam, _ := newTestCamera(t, 128, 128)

	for _, name := range []string{"exposure time", "binning", "roi"} {
		if _, err := cam.GetSetting(name); err != nil {
			t.Errorf("GetSetting(%q) error = %v", name, err)
		}
		if _, err := cam.DescribeSetting(name); err != nil {
			t.Errorf("DescribeSetting(%q) error = %v", name, err)
		}
	}
}

func TestCameraBinningSettingRoundTrip(t *testing.T) {
	cam, driver := newTestCamera(t, 128, 128)

	if err := cam.SetSetting("binning", Binning{H: 2, V: 4}); err != nil {
		t.Fatalf("SetSetting(binning) error = %v", err)
	}
	got, err := cam.GetSetting("binning")
	if err != nil {
		t.Fatalf("GetSetting(binning) error = %v", err)
	}
	if got.(Binning) != (Binning{H: 2, V: 4}) {
		t.Errorf("binning = %v, want {2 4}", got)
	}
	if driver.binning != (Binning{H: 2, V: 4}) {
		t.Errorf("driver binning = %v, want {2 4}", driver.binning)
	}
}

// Remote writes arrive as decoded JSON, so the setter has to accept an
// object with float64 fields.
func TestCameraTupleSettingsAcceptDecodedJSON(t *testing.T) {
	cam, driver := newTestCamera(t, 128, 128)

	if err := cam.SetSetting("binning", map[string]any{"h": 2.0, "v": 2.0}); err != nil {
		t.Fatalf("SetSetting(binning, object) error = %v", err)
	}
	if driver.binning != (Binning{H: 2, V: 2}) {
		t.Errorf("driver binning = %v, want {2 2}", driver.binning)
	}

	roi := map[string]any{"left": 16.0, "top": 8.0, "width": 32.0, "height": 32.0}
	if err := cam.SetSetting("roi", roi); err != nil {
		t.Fatalf("SetSetting(roi, object) error = %v", err)
	}
	if driver.roi != (ROI{Left: 16, Top: 8, Width: 32, Height: 32}) {
		t.Errorf("driver roi = %v", driver.roi)
	}

	if err := cam.SetSetting("binning", "2x2"); !errors.Is(err, ErrSettings) {
		t.Errorf("SetSetting(binning, string) error = %v, want ErrSettings", err)
	}
	if err := cam.SetSetting("roi", map[string]any{"left": 0.0}); !errors.Is(err, ErrSettings) {
		t.Errorf("SetSetting(roi) with missing fields error = %v, want ErrSettings", err)
	}
}

func TestCameraSetROIClipsToSensor(t *testing.T) {
	cam, driver := newTestCamera(t, 128, 96)

	// Zero extent selects the full remaining sensor.
	if err := cam.SetROI(ROI{Left: 0, Top: 0}); err != nil {
		t.Fatalf("SetROI(full) error = %v", err)
	}
	if driver.roi != (ROI{Left: 0, Top: 0, Width: 128, Height: 96}) {
		t.Errorf("full roi = %v", driver.roi)
	}

	// An overrunning rectangle is clipped, never widened past the edge.
	if err := cam.SetROI(ROI{Left: 100, Top: 80, Width: 64, Height: 64}); err != nil {
		t.Fatalf("SetROI(overrun) error = %v", err)
	}
	if driver.roi != (ROI{Left: 100, Top: 80, Width: 28, Height: 16}) {
		t.Errorf("clipped roi = %v", driver.roi)
	}
}

func TestCameraSetROIRejectsOriginOutsideSensor(t *testing.T) {
	cam, driver := newTestCamera(t, 128, 96)
	before := driver.roi

	tests := []ROI{
		{Left: 128, Top: 0, Width: 16, Height: 16},
		{Left: 200, Top: 0, Width: 64, Height: 32},
		{Left: 0, Top: 96, Width: 16, Height: 16},
	}
	for _, r := range tests {
		if err := cam.SetROI(r); !errors.Is(err, ErrSettings) {
			t.Errorf("SetROI(%+v) error = %v, want ErrSettings", r, err)
		}
	}
	if driver.roi != before {
		t.Errorf("driver roi = %v, want unchanged %v", driver.roi, before)
	}
}
