//go:build !rp2040 && !rp2350

package registry_test

import (
	"context"
	"testing"

	"dhtlink/services/hal/internal/consts"
	"dhtlink/services/hal/internal/platform"
	"dhtlink/services/hal/internal/registry"

	_ "dhtlink/services/hal/internal/devices/dht11"

	"github.com/google/go-cmp/cmp"
)

func TestDHT11RegisteredByImport(t *testing.T) {
	b, ok := registry.Lookup(consts.DevDHT11)
	if !ok {
		t.Fatalf("no builder for %q after importing the device package", consts.DevDHT11)
	}

	out, err := b.Build(registry.BuildInput{
		Ctx:        context.Background(),
		Pins:       &platform.HostPinFactory{},
		DeviceID:   "env0",
		Type:       consts.DevDHT11,
		ParamsJSON: map[string]any{"pin": 7},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.LineID != "gpio7" || out.Pin != 7 || out.SampleEvery <= 0 {
		t.Fatalf("build output: %+v", out)
	}
	var kinds []string
	for _, c := range out.Adaptor.Capabilities() {
		kinds = append(kinds, c.Kind)
	}
	if diff := cmp.Diff([]string{consts.KindTemperature, consts.KindHumidity}, kinds); diff != "" {
		t.Fatalf("capabilities (-want +got):\n%s", diff)
	}
}

func TestLookupUnknownType(t *testing.T) {
	if _, ok := registry.Lookup("dht22"); ok {
		t.Fatal("unexpected builder for dht22")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic re-registering dht11")
		}
	}()
	b, _ := registry.Lookup(consts.DevDHT11)
	registry.RegisterBuilder(consts.DevDHT11, b)
}
