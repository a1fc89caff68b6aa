// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dhtlink/bus"
	"dhtlink/types"
)

// DefaultForward is used when config/bridge names no patterns.
var DefaultForward = []string{
	"hal/state",
	"hal/capability/+/+/value",
	"hal/capability/+/+/state",
}

var (
	topicConfig = bus.T("config", "bridge")
	topicState  = bus.T("bridge", "state")
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for config on {"config","bridge"} and (re)configures the link.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{conn: conn}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn *bus.Connection

	mu     sync.Mutex
	curRun context.CancelFunc
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", "", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			s.publishState("stopped", "context_cancelled", "", nil)
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", "", nil)
				return
			}
			if msg.Payload == nil {
				s.stopCurrent()
				s.publishState("idle", "awaiting_config", "", nil)
				continue
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", "", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg types.BridgeConfig) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and forwarding
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg types.BridgeConfig) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", cfg.Transport.Type, err)
		return
	}
	patterns, err := parsePatterns(cfg.Forward)
	if err != nil {
		s.publishState("error", "forward_invalid", tr.String(), err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		link, err := tr.Open(ctx, s.inbound)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", tr.String(), fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		println("[bridge] link up via", tr.String())
		s.publishState("up", "link_established", tr.String(), nil)
		err = s.handleLink(ctx, link, patterns)
		_ = link.Close()
		if err == nil {
			// Cancelled: restart only on new config.
			return
		}
		delay := backoff()
		println("[bridge] link lost:", err.Error())
		s.publishState("degraded", "link_lost_retrying", tr.String(), fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// handleLink owns the active link lifetime. It returns nil only when ctx ends.
func (s *Service) handleLink(ctx context.Context, link Link, patterns []bus.Topic) error {
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan *bus.Message, 16)
	subs := make([]*bus.Subscription, 0, len(patterns))
	for _, p := range patterns {
		sub := s.conn.Subscribe(p)
		subs = append(subs, sub)
		go pump(lctx, sub, out)
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-link.Done():
			if err == nil {
				err = errors.New("link closed")
			}
			return err
		case msg := <-out:
			env, err := encodeEnvelope(msg)
			if err != nil {
				println("[bridge] drop", msg.Topic.String(), err.Error())
				continue
			}
			if err := link.Send(env); err != nil {
				return err
			}
		}
	}
}

// pump moves one subscription's messages onto the shared outbound queue.
func pump(ctx context.Context, sub *bus.Subscription, out chan<- *bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}

// inbound accepts upstream publishes. Only config/... topics are let in so the
// remote side can reconfigure services but cannot impersonate local state.
func (s *Service) inbound(env types.BridgeEnvelope) {
	t := bus.ParseTopic(env.Topic)
	if t.Len() < 2 || t.At(0) != "config" {
		return
	}
	var payload any
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		payload = []byte(env.Payload)
	}
	s.conn.Publish(s.conn.NewMessage(t, payload, env.Retained))
}

func encodeEnvelope(m *bus.Message) (types.BridgeEnvelope, error) {
	env := types.BridgeEnvelope{Topic: m.Topic.String(), Retained: m.Retained}
	if m.Payload == nil {
		return env, nil
	}
	b, err := json.Marshal(m.Payload)
	if err != nil {
		return env, err
	}
	env.Payload = b
	return env, nil
}

func parsePatterns(in []string) ([]bus.Topic, error) {
	if len(in) == 0 {
		in = DefaultForward
	}
	out := make([]bus.Topic, 0, len(in))
	for _, s := range in {
		t := bus.ParseTopic(s)
		if t.Len() == 0 {
			return nil, errors.New("empty forward pattern")
		}
		for i := 0; i < t.Len()-1; i++ {
			if t.At(i) == "#" {
				return nil, fmt.Errorf("forward pattern %q: '#' must be last", s)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (types.BridgeConfig, error) {
	var cfg types.BridgeConfig
	switch v := p.(type) {
	case types.BridgeConfig:
		return v, nil
	case *types.BridgeConfig:
		if v == nil {
			return cfg, errors.New("nil bridge config")
		}
		return *v, nil
	case []byte:
		err := json.Unmarshal(v, &cfg)
		return cfg, err
	case string:
		err := json.Unmarshal([]byte(v), &cfg)
		return cfg, err
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		err = json.Unmarshal(b, &cfg)
		return cfg, err
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
}

func (s *Service) publishState(level, status, transport string, err error) {
	st := types.BridgeState{
		Level:     level,
		Status:    status,
		Transport: transport,
		TS:        time.Now().UnixMilli(),
	}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
