//go:build !rp2040 && !rp2350

package platform

import (
	"bufio"
	"go/build/constraint"
	"os"
	"strings"
	"testing"

	"dhtlink/drivers/dht11/dht11sim"
	"dhtlink/services/hal/internal/halcore"
)

func TestHostPinFactory_StablePins(t *testing.T) {
	f := &HostPinFactory{}
	a, ok := f.ByNumber(3)
	if !ok {
		t.Fatal("pin 3 missing")
	}
	b, _ := f.ByNumber(3)
	if a != b {
		t.Fatal("ByNumber should return the same handle")
	}
	if _, ok := f.ByNumber(-1); ok {
		t.Fatal("negative pin should miss")
	}
}

func TestHostPinFactory_AttachSim(t *testing.T) {
	f := &HostPinFactory{}
	line := dht11sim.NewLine(0)
	f.Attach(2, line)

	p, ok := f.ByNumber(2)
	if !ok {
		t.Fatal("pin 2 missing")
	}
	sp, ok := p.(*SimPin)
	if !ok || sp.Line != line || sp.Number() != 2 {
		t.Fatalf("pin 2 is %T, want the attached SimPin", p)
	}
}

func TestFakePin_Levels(t *testing.T) {
	p := &FakePin{number: 1}
	_ = p.ConfigureInput(halcore.PullUp)
	if !p.Get() {
		t.Fatal("pulled-up input should read high")
	}
	_ = p.ConfigureOutput(false)
	if p.Get() {
		t.Fatal("output driven low should read low")
	}
	p.Set(true)
	if !p.Get() {
		t.Fatal("Set(true) should read high")
	}
	_ = p.ConfigureInput(halcore.PullDown)
	p.Set(true)
	if p.Get() {
		t.Fatal("pulled-down input should read low and ignore Set")
	}
}

// Simulated pins must stay out of board images.
func TestSimulatedPinsAreHostOnly(t *testing.T) {
	for _, path := range []string{"fake_host.go", "../../sim.go"} {
		expr := buildExpr(t, path)
		for _, board := range []string{"rp2040", "rp2350"} {
			if expr.Eval(func(tag string) bool { return tag == board || tag == "tinygo" }) {
				t.Errorf("%s builds for %s", path, board)
			}
		}
		if !expr.Eval(func(tag string) bool { return tag == "linux" }) {
			t.Errorf("%s excluded from linux host builds", path)
		}
	}
}

func buildExpr(t *testing.T, path string) constraint.Expr {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "package ") {
			break
		}
		if constraint.IsGoBuild(line) {
			expr, err := constraint.Parse(line)
			if err != nil {
				t.Fatalf("%s: %v", path, err)
			}
			return expr
		}
	}
	t.Fatalf("%s has no build constraint", path)
	return nil
}
