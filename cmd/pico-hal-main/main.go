//go:build rp2040 || rp2350

package main

import (
	"context"
	"runtime"
	"time"

	"dhtlink/bus"
	"dhtlink/services/bridge"
	"dhtlink/services/config"
	"dhtlink/services/console"
	"dhtlink/services/hal"
)

const deviceID = "pico"

func main() {
	time.Sleep(3 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)

	bridge.UARTDial = dialUART

	println("[main] starting hal …")
	go hal.Run(ctx, b.NewConnection("hal"), nil)

	println("[main] starting console …")
	if err := (&console.Service{}).Start(ctx, b.NewConnection("console")); err != nil {
		println("[main] console:", err.Error())
	}

	println("[main] starting bridge …")
	go bridge.Start(ctx, b.NewConnection("bridge"))

	println("[main] publishing config for", deviceID, "…")
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	for {
		printMem()
		time.Sleep(30 * time.Second)
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
