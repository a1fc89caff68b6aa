//go:build !rp2040 && !rp2350

// Command dht-exporter samples a DHT11 on a Linux host and serves the
// readings as Prometheus metrics, optionally bridging them to MQTT or a
// serial peer.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dhtlink/bus"
	"dhtlink/drivers/dht11/dht11sim"
	"dhtlink/services/bridge"
	"dhtlink/services/hal"
	"dhtlink/services/metrics"
	"dhtlink/types"
)

type options struct {
	pin        int
	interval   time.Duration
	listen     string
	mqtt       string
	mqttPrefix string
	serial     string
	baud       int
	sim        bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("dht-exporter", flag.ContinueOnError)
	fs.IntVar(&o.pin, "pin", 4, "BCM GPIO number of the sensor data line")
	fs.DurationVar(&o.interval, "interval", 2*time.Second, "sampling period (1s minimum)")
	fs.StringVar(&o.listen, "listen", ":9100", "metrics listen address")
	fs.StringVar(&o.mqtt, "mqtt", "", "MQTT broker URL, eg. tcp://localhost:1883")
	fs.StringVar(&o.mqttPrefix, "mqtt-prefix", "dhtlink", "topic prefix for MQTT publishes")
	fs.StringVar(&o.serial, "serial", "", "serial device of a framed bridge peer, eg. /dev/ttyUSB0")
	fs.IntVar(&o.baud, "baud", 115200, "serial baud rate")
	fs.BoolVar(&o.sim, "sim", false, "use a simulated sensor instead of GPIO")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.mqtt != "" && o.serial != "" {
		return o, errors.New("-mqtt and -serial are mutually exclusive")
	}
	if o.interval < time.Second {
		return o, errors.New("-interval must be at least 1s")
	}
	return o, nil
}

func (o options) halConfig() types.HALConfig {
	return types.HALConfig{Devices: []types.HALDevice{{
		ID:   "env0",
		Type: "dht11",
		Params: types.DHT11Params{
			Pin:        o.pin,
			IntervalMs: uint32(o.interval / time.Millisecond),
		},
	}}}
}

// bridgeConfig returns false when no upstream is requested.
func (o options) bridgeConfig() (types.BridgeConfig, bool) {
	switch {
	case o.mqtt != "":
		return types.BridgeConfig{Transport: types.BridgeTransport{
			Type: "mqtt",
			MQTT: &types.MQTTBroker{Broker: o.mqtt, Prefix: o.mqttPrefix, ClientID: "dht-exporter"},
		}}, true
	case o.serial != "":
		return types.BridgeConfig{Transport: types.BridgeTransport{
			Type: "uart",
			UART: &types.UARTLink{Port: o.serial, Baud: o.baud},
		}}, true
	}
	return types.BridgeConfig{}, false
}

func (o options) pins() hal.PinFactory {
	if !o.sim {
		return nil
	}
	line := dht11sim.NewLine(0)
	line.HoldFrame(dht11sim.Frame(45, 0, 22, 3))
	return hal.SimPins(map[int]*dht11sim.Line{o.pin: line})
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(16)
	cfg := b.NewConnection("main")

	exp := metrics.New()
	exp.Start(ctx, b.NewConnection("metrics"))

	go hal.Run(ctx, b.NewConnection("hal"), opts.pins())

	if bc, ok := opts.bridgeConfig(); ok {
		bridge.UARTDial = dialSerial
		go bridge.Start(ctx, b.NewConnection("bridge"))
		cfg.Publish(cfg.NewMessage(bus.T("config", "bridge"), bc, true))
	}
	cfg.Publish(cfg.NewMessage(bus.T("config", "hal"), opts.halConfig(), true))

	go logStates(ctx, b.NewConnection("log"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", exp.Handler())
	srv := &http.Server{Addr: opts.listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Printf("serving metrics on %s (pin %d, every %s)", opts.listen, opts.pin, opts.interval)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// logStates reports HAL and bridge state transitions.
func logStates(ctx context.Context, conn *bus.Connection) {
	halSub := conn.Subscribe(bus.T("hal", "state"))
	brSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-halSub.Channel():
			if st, ok := m.Payload.(types.HALState); ok {
				log.Printf("hal: %s/%s %s", st.Level, st.Status, st.Error)
			}
		case m := <-brSub.Channel():
			if st, ok := m.Payload.(types.BridgeState); ok {
				log.Printf("bridge: %s/%s %s", st.Level, st.Status, st.Error)
			}
		}
	}
}
