package dht11dev

import (
	"context"
	"errors"
	"testing"
	"time"

	"dhtlink/drivers/dht11/dht11sim"
	"dhtlink/errcode"
	"dhtlink/services/hal/internal/halcore"
	"dhtlink/services/hal/internal/halerr"
	"dhtlink/services/hal/internal/registry"
	"dhtlink/types"

	"github.com/google/go-cmp/cmp"
)

// simPin exposes a simulated line as a HAL pin; the embedded line also
// supplies the clock.
type simPin struct {
	*dht11sim.Line
	n    int
	pull halcore.Pull
}

func (p *simPin) ConfigureInput(pull halcore.Pull) error {
	p.pull = pull
	return p.Line.ConfigureInput()
}
func (p *simPin) Number() int { return p.n }

type simPins map[int]*simPin

func (f simPins) ByNumber(n int) (halcore.GPIOPin, bool) {
	p, ok := f[n]
	return p, ok
}

func withGap(t *testing.T, d time.Duration) {
	t.Helper()
	old := minGap
	minGap = d
	t.Cleanup(func() { minGap = old })
}

func build(t *testing.T, pins simPins, params any) registry.BuildOutput {
	t.Helper()
	out, err := builder{}.Build(registry.BuildInput{
		Ctx:        context.Background(),
		Pins:       pins,
		DeviceID:   "env0",
		Type:       "dht11",
		ParamsJSON: params,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return out
}

func TestBuild_ParamsAndDefaults(t *testing.T) {
	pins := simPins{4: {Line: dht11sim.NewLine(0), n: 4}}

	out := build(t, pins, map[string]any{"pin": 4})
	if out.LineID != "gpio4" || out.Pin != 4 || out.SampleEvery != DefaultInterval {
		t.Fatalf("unexpected output: %+v", out)
	}
	out = build(t, pins, types.DHT11Params{Pin: 4, IntervalMs: 5000})
	if out.SampleEvery != 5*time.Second {
		t.Fatalf("SampleEvery = %v", out.SampleEvery)
	}
	caps := out.Adaptor.Capabilities()
	if len(caps) != 2 || caps[0].Kind != "temperature" || caps[1].Kind != "humidity" {
		t.Fatalf("capabilities: %+v", caps)
	}
	want := types.Info{SchemaVersion: 1, Driver: "dht11", Detail: types.TemperatureInfo{Sensor: "dht11", Pin: 4}}
	if diff := cmp.Diff(want, caps[0].Info); diff != "" {
		t.Fatalf("temperature info (-want +got):\n%s", diff)
	}
}

func TestBuild_Errors(t *testing.T) {
	in := registry.BuildInput{DeviceID: "x", Pins: simPins{}, ParamsJSON: `{"pin":9}`}
	if _, err := (builder{}).Build(in); !errors.Is(err, halerr.ErrUnknownPin) {
		t.Fatalf("unknown pin: got %v", err)
	}
	in.ParamsJSON = `{"pin":`
	if _, err := (builder{}).Build(in); !errors.Is(err, halerr.ErrInvalidParams) {
		t.Fatalf("bad params: got %v", err)
	}
}

func TestCollect_PublishesTypedValues(t *testing.T) {
	withGap(t, 0)
	line := dht11sim.NewLine(0)
	line.RespondFrame(dht11sim.Frame(0x32, 0x00, 0x18, 0x05))
	pin := &simPin{Line: line, n: 2}
	ad := build(t, simPins{2: pin}, map[string]any{"pin": 2}).Adaptor

	s, err := ad.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if pin.pull != halcore.PullUp {
		t.Fatal("line must be released with the pull-up enabled")
	}
	if len(s) != 2 {
		t.Fatalf("sample: %+v", s)
	}
	if v := s[0].Payload.(types.TemperatureValue); v.DeciC != 245 {
		t.Fatalf("temperature: %+v", v)
	}
	if v := s[1].Payload.(types.HumidityValue); v.RHx100 != 5000 {
		t.Fatalf("humidity: %+v", v)
	}
}

func TestCollect_EnforcesMinimumSpacing(t *testing.T) {
	withGap(t, time.Hour)
	line := dht11sim.NewLine(0)
	line.HoldFrame(dht11sim.Frame(0x32, 0x00, 0x18, 0x05))
	ad := build(t, simPins{2: {Line: line, n: 2}}, map[string]any{"pin": 2}).Adaptor

	if _, err := ad.Collect(context.Background()); err != nil {
		t.Fatalf("first Collect: %v", err)
	}
	if _, err := ad.Collect(context.Background()); !errors.Is(err, halcore.ErrNotReady) {
		t.Fatalf("second Collect: want ErrNotReady, got %v", err)
	}
	if line.Starts() != 1 {
		t.Fatalf("line touched while not ready: %d starts", line.Starts())
	}
}

func TestCollect_FailuresAreCodedAndCounted(t *testing.T) {
	withGap(t, 0)
	line := dht11sim.NewLine(0)
	bad := dht11sim.Frame(0x32, 0x00, 0x18, 0x05)
	bad[4]++
	line.RespondFrame(bad)
	line.RespondFrame(dht11sim.Frame(0x32, 0x00, 0x18, 0x05))
	// third exchange: silent line
	ad := build(t, simPins{2: {Line: line, n: 2}}, map[string]any{"pin": 2}).Adaptor

	_, err := ad.Collect(context.Background())
	if errcode.Of(err) != errcode.ChecksumMismatch {
		t.Fatalf("checksum failure: code %q from %v", errcode.Of(err), err)
	}
	if _, err := ad.Collect(context.Background()); err != nil {
		t.Fatalf("good frame: %v", err)
	}
	_, err = ad.Collect(context.Background())
	if errcode.Of(err) != errcode.HandshakeTimeout {
		t.Fatalf("silent line: code %q from %v", errcode.Of(err), err)
	}

	res, err := ad.Control("temperature", "stats", nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	got := res.(types.SensorStats)
	want := types.SensorStats{
		Reads:            3,
		OK:               1,
		HandshakeTimeout: 1,
		Checksum:         1,
		LastError:        "dht11: handshake timeout: response not arrived",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}

	if _, err := ad.Control("temperature", "calibrate", nil); !errors.Is(err, halcore.ErrUnsupported) {
		t.Fatalf("unknown control: %v", err)
	}
}
