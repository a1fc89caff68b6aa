// services/hal/internal/service/service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dhtlink/bus"
	"dhtlink/errcode"
	"dhtlink/services/hal/internal/consts"
	"dhtlink/services/hal/internal/halcore"
	"dhtlink/services/hal/internal/halerr"
	"dhtlink/services/hal/internal/registry"
	"dhtlink/services/hal/internal/util"
	"dhtlink/services/hal/internal/worker"
	"dhtlink/types"
	"dhtlink/x/mathx"
	"dhtlink/x/timex"
)

// Sampling period limits. A DHT11 must not be polled faster than 1 Hz.
const (
	MinPeriod = time.Second
	MaxPeriod = time.Hour

	firstSampleDelay = 200 * time.Millisecond
)

type devEntry struct {
	adaptor halcore.Adaptor
	caps    map[string]int // kind -> numeric capability id
	lineID  string
	pin     int
	spec    string // type and params as built
}

type lineWorker struct {
	w    *worker.MeasureWorker
	stop context.CancelFunc
}

type capKey struct {
	kind string
	id   int
}

type Service struct {
	conn *bus.Connection
	pins halcore.PinFactory

	workers map[string]lineWorker // lineID -> worker
	results chan halcore.Result

	devices  map[string]devEntry
	pinOwner map[int]string // pin -> devID

	capToDev  map[capKey]string // (kind,id) -> devID
	nextCapID map[string]int

	devPeriod  map[string]time.Duration
	devNextDue map[string]time.Time

	timer *time.Timer
}

var (
	topicConfigHAL = bus.Topic{consts.TokConfig, consts.TokHAL}
	topicCtrl      = bus.Topic{consts.TokHAL, consts.TokCapability, "+", "+", consts.TokControl, "+"}
	topicHALState  = bus.Topic{consts.TokHAL, consts.TokState}
)

func New(conn *bus.Connection, pins halcore.PinFactory) *Service {
	return &Service{
		conn:       conn,
		pins:       pins,
		workers:    map[string]lineWorker{},
		results:    make(chan halcore.Result, 16),
		devices:    map[string]devEntry{},
		pinOwner:   map[int]string{},
		capToDev:   map[capKey]string{},
		nextCapID:  map[string]int{},
		devPeriod:  map[string]time.Duration{},
		devNextDue: map[string]time.Time{},
	}
}

func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigHAL)
	ctrlSub := s.conn.Subscribe(topicCtrl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		util.DrainTimer(s.timer)
	}
	defer s.timer.Stop()

	for {
		if next := s.earliestDevDue(); next.IsZero() {
			util.ResetTimer(s.timer, time.Hour)
		} else {
			util.ResetTimer(s.timer, time.Until(next))
		}

		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.HALConfig
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_wrong_type", err)
				continue
			}
			if err := s.applyConfig(ctx, cfg); err != nil {
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			now := time.Now()
			for devID, due := range s.devNextDue {
				if !now.Before(due) {
					s.submitMeasure(devID, false)
					s.bumpDevNext(devID, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

// ---- configuration ----

// applyConfig builds devices new to cfg, rebuilds those whose type or params
// changed and removes those no longer listed. A rebuilt device keeps its
// capability ids. A device that fails to build is skipped; the first such
// error is returned after the rest of the config has been applied.
func (s *Service) applyConfig(ctx context.Context, cfg types.HALConfig) error {
	var firstErr error
	want := map[string]string{}
	for i := range cfg.Devices {
		want[cfg.Devices[i].ID] = deviceSpec(&cfg.Devices[i])
	}

	// Drop stale devices first so their pins are free for the rebuilds.
	reuse := map[string]map[string]int{}
	for devID, ent := range s.devices {
		spec, ok := want[devID]
		if ok && spec == ent.spec {
			continue
		}
		if ok {
			reuse[devID] = ent.caps
		}
		s.removeDevice(devID)
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if _, exists := s.devices[d.ID]; exists {
			continue
		}
		if err := s.addDevice(ctx, d, reuse[d.ID]); err != nil {
			println("[hal] device", d.ID, "not built:", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.stopIdleWorkers()
	return firstErr
}

// deviceSpec is the comparable form of a device entry.
func deviceSpec(d *types.HALDevice) string {
	b, err := json.Marshal(d.Params)
	if err != nil {
		// Unencodable params never compare equal, so the device is rebuilt.
		return d.Type + "\x00!" + err.Error()
	}
	return d.Type + "\x00" + string(b)
}

// stopIdleWorkers ends workers whose line no longer carries a device.
func (s *Service) stopIdleWorkers() {
	busy := map[string]bool{}
	for _, ent := range s.devices {
		busy[ent.lineID] = true
	}
	for lineID, lw := range s.workers {
		if !busy[lineID] {
			lw.stop()
			delete(s.workers, lineID)
		}
	}
}

// addDevice builds d. Capabilities listed in caps keep their ids; others get
// the next free id of their kind.
func (s *Service) addDevice(ctx context.Context, d *types.HALDevice, caps map[string]int) error {
	b, ok := registry.Lookup(d.Type)
	if !ok {
		return halerr.ErrUnknownType
	}
	out, err := b.Build(registry.BuildInput{
		Ctx:        ctx,
		Pins:       s.pins,
		DeviceID:   d.ID,
		Type:       d.Type,
		ParamsJSON: d.Params,
	})
	if err != nil {
		return err
	}
	if owner, taken := s.pinOwner[out.Pin]; taken && out.Pin >= 0 {
		println("[hal] pin", out.Pin, "already owned by", owner)
		return halerr.ErrPinInUse
	}

	lineID := out.LineID
	if lineID == "" {
		lineID = d.ID
	}
	if _, ok := s.workers[lineID]; !ok {
		wctx, stop := context.WithCancel(ctx)
		w := worker.New(halcore.WorkerConfig{}, s.results)
		w.Start(wctx)
		s.workers[lineID] = lineWorker{w: w, stop: stop}
	}

	ent := devEntry{adaptor: out.Adaptor, lineID: lineID, pin: out.Pin, spec: deviceSpec(d), caps: map[string]int{}}
	if out.Pin >= 0 {
		s.pinOwner[out.Pin] = d.ID
	}

	now := timex.NowMs()
	for _, ci := range out.Adaptor.Capabilities() {
		id, kept := caps[ci.Kind]
		if !kept {
			id = s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++
		}

		ent.caps[ci.Kind] = id
		s.capToDev[capKey{kind: ci.Kind, id: id}] = d.ID

		s.pubRet(ci.Kind, id, consts.TokInfo, ci.Info)
		s.pubRet(ci.Kind, id, consts.TokState, types.CapabilityStatus{Link: types.LinkUp, TS: now})
	}
	s.devices[d.ID] = ent

	if out.SampleEvery > 0 {
		s.devPeriod[d.ID] = mathx.Clamp(out.SampleEvery, MinPeriod, MaxPeriod)
		s.devNextDue[d.ID] = time.Now().Add(firstSampleDelay)
	}
	return nil
}

func (s *Service) removeDevice(devID string) {
	ent := s.devices[devID]
	now := timex.NowMs()
	for kind, id := range ent.caps {
		s.pubRet(kind, id, consts.TokInfo, nil)
		s.pubRet(kind, id, consts.TokState, types.CapabilityStatus{Link: types.LinkDown, TS: now})
		delete(s.capToDev, capKey{kind: kind, id: id})
	}
	if s.pinOwner[ent.pin] == devID {
		delete(s.pinOwner, ent.pin)
	}
	delete(s.devices, devID)
	delete(s.devPeriod, devID)
	delete(s.devNextDue, devID)
}

// ---- control plane ----

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 6 {
		return
	}
	kind, _ := msg.Topic[2].(string)
	idNum, ok := asInt(msg.Topic[3])
	if !ok || kind == "" {
		s.replyErr(msg, halerr.ErrInvalidCapAddr)
		return
	}
	devID, ok := s.capToDev[capKey{kind: kind, id: idNum}]
	if !ok {
		s.replyErr(msg, halerr.ErrUnknownCap)
		return
	}
	method, _ := msg.Topic[5].(string)

	switch method {
	case consts.CtrlReadNow:
		if s.submitMeasure(devID, true) {
			s.bumpDevNext(devID, time.Now())
			s.conn.Reply(msg, types.ReadNowAck{OK: true}, false)
		} else {
			s.replyErr(msg, halerr.ErrBusy)
		}

	case consts.CtrlSetRate:
		var p types.SetRate
		if err := util.DecodeJSON(msg.Payload, &p); err != nil {
			s.replyErr(msg, halerr.ErrInvalidPeriod)
			return
		}
		period := p.Period
		if period <= 0 {
			period = timex.Ms(p.PeriodMs, 0)
		}
		if period <= 0 {
			s.replyErr(msg, halerr.ErrInvalidPeriod)
			return
		}
		s.devPeriod[devID] = mathx.Clamp(period, MinPeriod, MaxPeriod)
		s.bumpDevNext(devID, time.Now())
		s.conn.Reply(msg, types.SetRateAck{OK: true, Period: s.devPeriod[devID]}, false)

	default:
		ent := s.devices[devID]
		if ent.adaptor == nil {
			s.replyErr(msg, halerr.ErrNoAdaptor)
			return
		}
		res, err := ent.adaptor.Control(kind, method, msg.Payload)
		switch {
		case err == nil:
			s.conn.Reply(msg, res, false)
		case errors.Is(err, halcore.ErrUnsupported):
			s.replyErr(msg, halerr.ErrUnsupported)
		default:
			s.replyErr(msg, err)
		}
	}
}

// ---- measurement helpers ----

func (s *Service) submitMeasure(devID string, prio bool) bool {
	ent, ok := s.devices[devID]
	if !ok {
		return false
	}
	lw, ok := s.workers[ent.lineID]
	if !ok {
		return false
	}
	return lw.w.Submit(halcore.MeasureReq{ID: devID, Adaptor: ent.adaptor, Prio: prio})
}

func (s *Service) bumpDevNext(devID string, from time.Time) {
	period, ok := s.devPeriod[devID]
	if !ok {
		return
	}
	s.devNextDue[devID] = from.Add(period)
}

func (s *Service) earliestDevDue() time.Time {
	var min time.Time
	for _, t := range s.devNextDue {
		if !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}

// ---- results ----

func (s *Service) handleResult(r halcore.Result) {
	ent, ok := s.devices[r.ID]
	if !ok {
		return
	}
	now := timex.NowMs()

	if r.Err != nil {
		code := errcode.Of(r.Err)
		if errors.Is(r.Err, halcore.ErrNotReady) {
			code = errcode.NotReady
		}
		for kind, id := range ent.caps {
			s.pubRet(kind, id, consts.TokState, types.CapabilityStatus{
				Link:  types.LinkDegraded,
				TS:    now,
				Error: string(code),
			})
		}
		return
	}
	for _, rd := range r.Sample {
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.conn.Publish(s.conn.NewMessage(capTopic(rd.Kind, id, consts.TokValue), rd.Payload, false))
		s.pubRet(rd.Kind, id, consts.TokState, types.CapabilityStatus{Link: types.LinkUp, TS: now})
	}
}

// ---- bus helpers & utils ----

func (s *Service) publishState(level, status string, err error) {
	pl := types.HALState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		pl.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicHALState, pl, true))
}

func (s *Service) replyErr(req *bus.Message, err error) {
	if !req.CanReply() {
		return
	}
	code := "error"
	if err != nil {
		code = err.Error()
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: code}, false)
}

func capTopic(kind string, id int, suffix string) bus.Topic {
	return bus.Topic{consts.TokHAL, consts.TokCapability, kind, id, suffix}
}

func (s *Service) pubRet(kind string, id int, suffix string, p any) {
	s.conn.Publish(s.conn.NewMessage(capTopic(kind, id, suffix), p, true))
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n := 0
		if v == "" {
			return 0, false
		}
		for _, c := range v {
			if c < '0' || c > '9' {
				return 0, false
			}
			n = n*10 + int(c-'0')
		}
		return n, true
	default:
		return 0, false
	}
}
