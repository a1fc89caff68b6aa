// Package console prints sensor readings from the bus as human-readable
// lines on the serial console.
package console

import (
	"context"
	"encoding/json"
	"time"

	"dhtlink/bus"
	"dhtlink/types"
	"dhtlink/x/conv"
	"dhtlink/x/timex"
)

var (
	topicConfigConsole = bus.Topic{"config", "console"}
	topicTemperature   = bus.Topic{"hal", "capability", "temperature", "+", "value"}
	topicHumidity      = bus.Topic{"hal", "capability", "humidity", "+", "value"}
)

// AppendReading formats one reading block:
//
//	--- [12] ---
//	Humidity: 50.0%
//	Temperature: 24.5°C
func AppendReading(dst []byte, uptime time.Duration, deciRH, deciC int32) []byte {
	var buf [20]byte
	dst = append(dst, "--- ["...)
	dst = append(dst, conv.Itoa(buf[:], int64(uptime/time.Second))...)
	dst = append(dst, "] ---\nHumidity: "...)
	dst = conv.AppendDeci(dst, deciRH)
	dst = append(dst, "%\nTemperature: "...)
	dst = conv.AppendDeci(dst, deciC)
	return append(dst, "°C"...)
}

// pair collects the two halves of one acquisition.
type pair struct {
	temp    *types.TemperatureValue
	hum     *types.HumidityValue
	printed time.Time
}

type Service struct {
	// Print writes one block. Defaults to println.
	Print func(s string)

	cfg   types.ConsoleConfig
	pairs map[int]*pair // capability id -> latest halves
	buf   []byte
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, cfgSub, tSub, hSub *bus.Subscription) {
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(tSub)
	defer conn.Unsubscribe(hSub)

	for {
		select {
		case <-ctx.Done():
			println("[console] stopping")
			return
		case msg := <-cfgSub.Channel():
			if c, ok := decodeConfig(msg.Payload); ok {
				s.cfg = c
			} else {
				println("[console] ignoring malformed config")
			}
		case msg := <-tSub.Channel():
			if v, ok := msg.Payload.(types.TemperatureValue); ok {
				p := s.slot(msg.Topic)
				p.temp = &v
				s.emit(p)
			}
		case msg := <-hSub.Channel():
			if v, ok := msg.Payload.(types.HumidityValue); ok {
				p := s.slot(msg.Topic)
				p.hum = &v
				s.emit(p)
			}
		}
	}
}

func (s *Service) slot(t bus.Topic) *pair {
	id, _ := t[3].(int)
	p, ok := s.pairs[id]
	if !ok {
		p = &pair{}
		s.pairs[id] = p
	}
	return p
}

// emit prints once both halves of the same acquisition are present.
func (s *Service) emit(p *pair) {
	if p.temp == nil || p.hum == nil || p.temp.TS != p.hum.TS || !s.cfg.Enabled {
		return
	}
	now := time.Now()
	if gap := timex.Ms(s.cfg.MinIntervalMs, 0); gap > 0 && now.Sub(p.printed) < gap {
		return
	}
	p.printed = now
	s.buf = AppendReading(s.buf[:0], timex.Uptime(), int32(p.hum.RHx100/10), int32(p.temp.DeciC))
	s.Print(string(s.buf))
	p.temp, p.hum = nil, nil
}

func decodeConfig(p any) (types.ConsoleConfig, bool) {
	switch v := p.(type) {
	case types.ConsoleConfig:
		return v, true
	case *types.ConsoleConfig:
		if v == nil {
			return types.ConsoleConfig{}, false
		}
		return *v, true
	case []byte:
		var c types.ConsoleConfig
		return c, json.Unmarshal(v, &c) == nil
	default:
		return types.ConsoleConfig{}, false
	}
}

// Start the console service. Output is enabled until config says otherwise.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Print == nil {
		s.Print = func(line string) { println(line) }
	}
	s.cfg = types.ConsoleConfig{Enabled: true}
	s.pairs = map[int]*pair{}
	// Subscribe before returning so no reading published after Start is missed.
	cfgSub := conn.Subscribe(topicConfigConsole)
	tSub := conn.Subscribe(topicTemperature)
	hSub := conn.Subscribe(topicHumidity)
	go s.serviceLoop(ctx, conn, cfgSub, tSub, hSub)
	return nil
}
