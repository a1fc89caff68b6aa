package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"dhtlink/types"
)

// MQTTTimeout bounds connect, subscribe and publish waits.
var MQTTTimeout = 5 * time.Second

// newMQTTClient is swapped in tests.
var newMQTTClient = mqtt.NewClient

type mqttTransport struct {
	cfg types.MQTTBroker
}

func newMQTTTransport(cfg types.BridgeTransport) (Transport, error) {
	if cfg.MQTT == nil || cfg.MQTT.Broker == "" {
		return nil, errors.New("mqtt transport requires mqtt.broker")
	}
	return &mqttTransport{cfg: *cfg.MQTT}, nil
}

func (m *mqttTransport) String() string { return "mqtt" }

// remoteTopic maps a bus topic string to its broker topic.
func (m *mqttTransport) remoteTopic(t string) string {
	if m.cfg.Prefix == "" {
		return t
	}
	return m.cfg.Prefix + "/" + t
}

// localTopic strips the prefix; ok is false for topics outside it.
func (m *mqttTransport) localTopic(t string) (string, bool) {
	if m.cfg.Prefix == "" {
		return t, true
	}
	p := m.cfg.Prefix + "/"
	if len(t) <= len(p) || t[:len(p)] != p {
		return "", false
	}
	return t[len(p):], true
}

func (m *mqttTransport) Open(ctx context.Context, inbound func(types.BridgeEnvelope)) (Link, error) {
	l := &mqttLink{t: m, done: make(chan error, 1)}

	opts := mqtt.NewClientOptions().AddBroker(m.cfg.Broker)
	id := m.cfg.ClientID
	if id == "" {
		id = "dhtlink"
	}
	opts.SetClientID(id)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	// The bridge supervisor owns reconnection and backoff.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(MQTTTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.fail(err)
	})

	c := newMQTTClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return nil, err
	}
	l.c = c

	if inbound != nil {
		filter := m.remoteTopic("config/#")
		tok := c.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
			local, ok := m.localTopic(msg.Topic())
			if !ok {
				return
			}
			inbound(types.BridgeEnvelope{
				Topic:    local,
				Payload:  json.RawMessage(msg.Payload()),
				Retained: msg.Retained(),
			})
		})
		if err := wait(ctx, tok); err != nil {
			c.Disconnect(250)
			return nil, err
		}
	}
	return l, nil
}

type mqttLink struct {
	t    *mqttTransport
	c    mqtt.Client
	done chan error
	once sync.Once
}

func (l *mqttLink) fail(err error) {
	if err == nil {
		err = errors.New("mqtt connection lost")
	}
	l.once.Do(func() { l.done <- err })
}

// Send publishes at QoS 0 keeping the retained flag.
func (l *mqttLink) Send(env types.BridgeEnvelope) error {
	payload := []byte(env.Payload)
	if payload == nil {
		payload = []byte{}
	}
	tok := l.c.Publish(l.t.remoteTopic(env.Topic), 0, env.Retained, payload)
	if !tok.WaitTimeout(MQTTTimeout) {
		return errors.New("mqtt publish timeout")
	}
	return tok.Error()
}

func (l *mqttLink) Done() <-chan error { return l.done }

func (l *mqttLink) Close() error {
	l.c.Disconnect(250)
	return nil
}

// wait blocks on a paho token, giving up on ctx or MQTTTimeout.
func wait(ctx context.Context, tok mqtt.Token) error {
	t := time.NewTimer(MQTTTimeout)
	defer t.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return errors.New("mqtt timeout")
	}
}
