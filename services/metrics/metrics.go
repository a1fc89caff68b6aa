// Package metrics exports bus readings for Prometheus on Linux hosts.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/physic"

	"dhtlink/bus"
	"dhtlink/types"
	"dhtlink/x/conv"
)

var (
	topicValues = bus.T("hal", "capability", "+", "+", "value")
	topicStates = bus.T("hal", "capability", "+", "+", "state")
)

// Exporter mirrors capability values and link state into gauges on its own
// registry, so several exporters can coexist in one process (tests).
type Exporter struct {
	reg  *prometheus.Registry
	temp *prometheus.GaugeVec
	hum  *prometheus.GaugeVec
	link *prometheus.GaugeVec
	errs *prometheus.CounterVec

	mu     sync.Mutex
	latest map[string]physic.Env
}

func New() *Exporter {
	e := &Exporter{
		reg: prometheus.NewRegistry(),
		temp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dht_temperature_celsius",
			Help: "Last temperature reported by the sensor.",
		}, []string{"name"}),
		hum: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dht_relative_humidity_percent",
			Help: "Last relative humidity reported by the sensor.",
		}, []string{"name"}),
		link: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dht_link_up",
			Help: "1 when the last acquisition succeeded, 0 otherwise.",
		}, []string{"kind", "name"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dht_read_errors_total",
			Help: "Failed acquisitions by error code.",
		}, []string{"name", "code"}),
		latest: make(map[string]physic.Env),
	}
	e.reg.MustRegister(e.temp, e.hum, e.link, e.errs)
	return e
}

// Registry exposes the private registry (eg. to add process collectors).
func (e *Exporter) Registry() *prometheus.Registry { return e.reg }

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{})
}

// Latest returns the last reading seen for a capability id in physical units.
func (e *Exporter) Latest(name string) (physic.Env, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	env, ok := e.latest[name]
	return env, ok
}

// Start subscribes before returning and consumes until ctx ends.
func (e *Exporter) Start(ctx context.Context, conn *bus.Connection) {
	vals := conn.Subscribe(topicValues)
	states := conn.Subscribe(topicStates)
	go func() {
		defer conn.Unsubscribe(vals)
		defer conn.Unsubscribe(states)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-vals.Channel():
				if !ok {
					return
				}
				e.observeValue(m)
			case m, ok := <-states.Channel():
				if !ok {
					return
				}
				e.observeState(m)
			}
		}
	}()
}

// capName extracts kind and id from hal/capability/<kind>/<id>/...
func capName(t bus.Topic) (kind, name string, ok bool) {
	if t.Len() < 4 {
		return "", "", false
	}
	kind, ok = t.At(2).(string)
	if !ok {
		return "", "", false
	}
	switch id := t.At(3).(type) {
	case int:
		var buf [20]byte
		name = string(conv.Itoa(buf[:], int64(id)))
	case string:
		name = id
	default:
		return "", "", false
	}
	return kind, name, true
}

func (e *Exporter) observeValue(m *bus.Message) {
	_, name, ok := capName(m.Topic)
	if !ok {
		return
	}
	e.mu.Lock()
	env := e.latest[name]
	switch v := m.Payload.(type) {
	case types.TemperatureValue:
		env.Temperature = DeciCelsius(v.DeciC)
		e.temp.WithLabelValues(name).Set(Celsius(env.Temperature))
	case types.HumidityValue:
		env.Humidity = HundredthsRH(v.RHx100)
		e.hum.WithLabelValues(name).Set(Percent(env.Humidity))
	default:
		e.mu.Unlock()
		return
	}
	e.latest[name] = env
	e.mu.Unlock()
}

func (e *Exporter) observeState(m *bus.Message) {
	kind, name, ok := capName(m.Topic)
	if !ok {
		return
	}
	st, ok := m.Payload.(types.CapabilityStatus)
	if !ok {
		return
	}
	up := 0.0
	if st.Link == types.LinkUp {
		up = 1
	}
	e.link.WithLabelValues(kind, name).Set(up)
	// Temperature and humidity share one acquisition; count it once.
	if st.Link == types.LinkDegraded && st.Error != "" && kind == string(types.KindTemperature) {
		e.errs.WithLabelValues(name, st.Error).Inc()
	}
}

// -----------------------------------------------------------------------------
// Unit conversion
// -----------------------------------------------------------------------------

// DeciCelsius converts tenths of a degree Celsius to a physic.Temperature.
func DeciCelsius(d int16) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(d)*100*physic.MilliKelvin
}

// HundredthsRH converts hundredths of a percent to a physic.RelativeHumidity.
func HundredthsRH(h uint16) physic.RelativeHumidity {
	return physic.RelativeHumidity(h) * (physic.PercentRH / 100)
}

func Celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Kelvin)
}

func Percent(h physic.RelativeHumidity) float64 {
	return float64(h) / float64(physic.PercentRH)
}
