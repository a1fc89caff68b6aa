package console

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"dhtlink/bus"
	"dhtlink/types"
)

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) print(s string) {
	c.mu.Lock()
	c.lines = append(c.lines, s)
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *collector) waitN(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d blocks, got %v", n, c.snapshot())
	return nil
}

func publishPair(conn *bus.Connection, id int, deciC int16, rhx100 uint16, ts int64) {
	conn.Publish(conn.NewMessage(bus.T("hal", "capability", "temperature", id, "value"),
		types.TemperatureValue{DeciC: deciC, TS: ts}, false))
	conn.Publish(conn.NewMessage(bus.T("hal", "capability", "humidity", id, "value"),
		types.HumidityValue{RHx100: rhx100, TS: ts}, false))
}

func TestAppendReading(t *testing.T) {
	got := string(AppendReading(nil, 12*time.Second+300*time.Millisecond, 500, 245))
	want := "--- [12] ---\nHumidity: 50.0%\nTemperature: 24.5°C"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
	got = string(AppendReading(nil, 0, 7, -30))
	if !strings.HasSuffix(got, "Humidity: 0.7%\nTemperature: -3.0°C") {
		t.Fatalf("negative/small values: %q", got)
	}
}

func TestConsole_PrintsCompletePairs(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	c := &collector{}
	s := &Service{Print: c.print}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Start(ctx, conn)

	// A lone half prints nothing.
	conn.Publish(conn.NewMessage(bus.T("hal", "capability", "temperature", 1, "value"),
		types.TemperatureValue{DeciC: 100, TS: 1}, false))
	publishPair(conn, 0, 245, 5000, 2)

	got := c.waitN(t, 1)
	if !strings.HasSuffix(got[0], "Humidity: 50.0%\nTemperature: 24.5°C") {
		t.Fatalf("unexpected block: %q", got[0])
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(c.snapshot()); n != 1 {
		t.Fatalf("printed %d blocks, want 1", n)
	}
}

func TestConsole_ConfigDisables(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	c := &collector{}
	s := &Service{Print: c.print}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Start(ctx, conn)

	conn.Publish(conn.NewMessage(bus.T("config", "console"), types.ConsoleConfig{Enabled: false}, true))
	time.Sleep(20 * time.Millisecond) // config and values arrive on separate subscriptions
	publishPair(conn, 0, 245, 5000, 1)
	time.Sleep(30 * time.Millisecond)
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("disabled console printed %v", got)
	}

	conn.Publish(conn.NewMessage(bus.T("config", "console"), types.ConsoleConfig{Enabled: true}, true))
	time.Sleep(20 * time.Millisecond)
	publishPair(conn, 0, 212, 4500, 2)
	got := c.waitN(t, 1)
	if !strings.HasSuffix(got[0], "Humidity: 45.0%\nTemperature: 21.2°C") {
		t.Fatalf("unexpected block: %q", got[0])
	}
}

func TestDecodeConfig(t *testing.T) {
	cases := []struct {
		in     any
		want   types.ConsoleConfig
		wantOK bool
	}{
		{types.ConsoleConfig{Enabled: true}, types.ConsoleConfig{Enabled: true}, true},
		{&types.ConsoleConfig{MinIntervalMs: 5000}, types.ConsoleConfig{MinIntervalMs: 5000}, true},
		{(*types.ConsoleConfig)(nil), types.ConsoleConfig{}, false},
		{[]byte(`{"enabled":true,"min_interval_ms":1000}`), types.ConsoleConfig{Enabled: true, MinIntervalMs: 1000}, true},
		{[]byte(`{`), types.ConsoleConfig{}, false},
		{42, types.ConsoleConfig{}, false},
	}
	for i, c := range cases {
		got, ok := decodeConfig(c.in)
		if ok != c.wantOK || (ok && got != c.want) {
			t.Fatalf("case %d: got %+v,%v want %+v,%v", i, got, ok, c.want, c.wantOK)
		}
	}
}
