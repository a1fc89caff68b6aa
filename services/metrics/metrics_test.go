package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"periph.io/x/conn/v3/physic"

	"dhtlink/bus"
	"dhtlink/types"
)

func capTopic(kind string, id int, leaf string) bus.Topic {
	return bus.T("hal", "capability", kind, id, leaf)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestExporter_ValuesAndLink(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("metrics_test")
	e := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx, conn)

	conn.Publish(conn.NewMessage(capTopic("temperature", 0, "value"), types.TemperatureValue{DeciC: 245}, false))
	conn.Publish(conn.NewMessage(capTopic("humidity", 0, "value"), types.HumidityValue{RHx100: 5000}, false))
	conn.Publish(conn.NewMessage(capTopic("temperature", 0, "state"), types.CapabilityStatus{Link: types.LinkUp}, true))

	waitFor(t, func() bool {
		return testutil.ToFloat64(e.link.WithLabelValues("temperature", "0")) == 1
	})
	waitFor(t, func() bool {
		env, ok := e.Latest("0")
		return ok && env.Humidity != 0
	})

	if got := testutil.ToFloat64(e.temp.WithLabelValues("0")); got != 24.5 {
		t.Fatalf("temperature gauge = %v", got)
	}
	if got := testutil.ToFloat64(e.hum.WithLabelValues("0")); got != 50 {
		t.Fatalf("humidity gauge = %v", got)
	}
	env, _ := e.Latest("0")
	if env.Temperature != physic.ZeroCelsius+24500*physic.MilliKelvin {
		t.Fatalf("latest temperature = %v", env.Temperature)
	}
	if env.Humidity != 50*physic.PercentRH {
		t.Fatalf("latest humidity = %v", env.Humidity)
	}
}

func TestExporter_ErrorsCountedOncePerAcquisition(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("metrics_test")
	e := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx, conn)

	degraded := types.CapabilityStatus{Link: types.LinkDegraded, Error: "checksum_mismatch"}
	for i := 0; i < 2; i++ {
		conn.Publish(conn.NewMessage(capTopic("temperature", 0, "state"), degraded, true))
		conn.Publish(conn.NewMessage(capTopic("humidity", 0, "state"), degraded, true))
	}

	waitFor(t, func() bool {
		return testutil.ToFloat64(e.errs.WithLabelValues("0", "checksum_mismatch")) == 2
	})
	if got := testutil.ToFloat64(e.link.WithLabelValues("humidity", "0")); got != 0 {
		t.Fatalf("link gauge = %v", got)
	}
	// Give stray deliveries a chance to show up before the final count.
	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(e.errs.WithLabelValues("0", "checksum_mismatch")); got != 2 {
		t.Fatalf("errors = %v, want 2", got)
	}
}

func TestExporter_Handler(t *testing.T) {
	e := New()
	e.observeValue(&bus.Message{Topic: capTopic("temperature", 3, "value"), Payload: types.TemperatureValue{DeciC: -30}})

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `dht_temperature_celsius{name="3"} -3`) {
		t.Fatalf("metrics body missing temperature:\n%s", body)
	}
	if n := testutil.CollectAndCount(e.temp); n != 1 {
		t.Fatalf("temperature series = %d", n)
	}
}

func TestExporter_IgnoresForeignPayloads(t *testing.T) {
	e := New()
	e.observeValue(&bus.Message{Topic: capTopic("temperature", 0, "value"), Payload: "junk"})
	e.observeState(&bus.Message{Topic: bus.T("hal", "state"), Payload: types.CapabilityStatus{}})
	if n := testutil.CollectAndCount(e.temp); n != 0 {
		t.Fatalf("unexpected temperature series: %d", n)
	}
	if _, ok := e.Latest("0"); ok {
		t.Fatal("foreign payload recorded")
	}
}

func TestConversions(t *testing.T) {
	if got := Celsius(DeciCelsius(-30)); got != -3 {
		t.Fatalf("Celsius(-3.0) = %v", got)
	}
	if got := Percent(HundredthsRH(4550)); got != 45.5 {
		t.Fatalf("Percent(45.50) = %v", got)
	}
}
