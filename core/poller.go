package core

import (
	"context"
	"fmt"
	"time"

	"github.com/evilsocket/islazy/async"
	"github.com/evilsocket/islazy/log"
	"github.com/teris-io/shortid"

	"github.com/evilsocket/meterlink/models"
)

type PollerConfig struct {
	PeriodMs     int `yaml:"period_ms"`
	IdleMs       int `yaml:"idle_ms"`
	BackoffMinMs int `yaml:"backoff_min_ms"`
	BackoffMaxMs int `yaml:"backoff_max_ms"`
}

func (c *PollerConfig) Compile() error {
	if c.PeriodMs <= 0 {
		c.PeriodMs = 500
	}
	if c.IdleMs <= 0 {
		c.IdleMs = 1000
	}
	if c.BackoffMinMs <= 0 {
		c.BackoffMinMs = 1000
	}
	if c.BackoffMaxMs <= 0 {
		c.BackoffMaxMs = 30000
	}
	if c.BackoffMaxMs < c.BackoffMinMs {
		return fmt.Errorf("backoff_max_ms (%d) is lower than backoff_min_ms (%d)", c.BackoffMaxMs, c.BackoffMinMs)
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

type SettingsSource interface {
	LoadCurrentSettings() (Settings, bool, error)
}

type MeasurementSink interface {
	SaveMeasurement(m *models.Measurement) (uint, error)
}

// PersistHandler is invoked synchronously after each persisted measurement.
type PersistHandler func(ctx context.Context, id uint)

// Poller samples the instrument fields and persists a measurement every time
// the sample changes.
type Poller struct {
	conf       PollerConfig
	instrument InstrumentConfig
	source     Instrument
	settings   SettingsSource
	sink       MeasurementSink
	monitor    *Monitor
	onPersist  PersistHandler

	newKey func() (string, error)
	now    func() time.Time

	previous    Sample
	hasPrevious bool
	backoff     time.Duration
}

func NewPoller(conf PollerConfig, instrument InstrumentConfig, source Instrument, settings SettingsSource, sink MeasurementSink, monitor *Monitor) *Poller {
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &Poller{
		conf:       conf,
		instrument: instrument,
		source:     source,
		settings:   settings,
		sink:       sink,
		monitor:    monitor,
		newKey:     shortid.Generate,
		now:        time.Now,
	}
}

func (p *Poller) OnPersist(handler PersistHandler) {
	p.onPersist = handler
}

// Run polls until the context is cancelled, the stop signal is checked once per cycle.
func (p *Poller) Run(ctx context.Context) {
	log.Info("polling %d fields from %s:%d every %dms ...", len(p.instrument.Fields), p.instrument.Host, p.instrument.Port, p.conf.PeriodMs)

	for {
		select {
		case <-ctx.Done():
			log.Info("poller stopped")
			return
		default:
		}

		wait := p.cycle(ctx)

		select {
		case <-ctx.Done():
			log.Info("poller stopped")
			return
		case <-time.After(wait):
		}
	}
}

// cycle runs one poll iteration and returns how long to wait before the next one.
func (p *Poller) cycle(ctx context.Context) time.Duration {
	settings, found, err := p.settings.LoadCurrentSettings()
	if err != nil {
		log.Error("error loading settings: %v", err)
		return ms(p.conf.IdleMs)
	} else if !found || !settings.Active() {
		log.Debug("no active settings, idling")
		return ms(p.conf.IdleMs)
	}

	if !p.source.IsConnected() {
		if err := p.connect(ctx); err != nil {
			log.Warning("%v (retrying in %s)", err, p.backoff)
			return p.backoff
		}
	}

	p.onSample(ctx, settings, p.read(ctx))

	return ms(p.conf.PeriodMs)
}

func (p *Poller) connect(ctx context.Context) error {
	connID, err := p.source.Connect(ctx, p.instrument.Host, p.instrument.Port)
	if err != nil {
		if p.backoff == 0 {
			p.backoff = ms(p.conf.BackoffMinMs)
		} else {
			p.backoff *= 2
		}
		if limit := ms(p.conf.BackoffMaxMs); p.backoff > limit {
			p.backoff = limit
		}
		return err
	}

	log.Info("connected to instrument %s:%d (connection %s)", p.instrument.Host, p.instrument.Port, connID)
	p.backoff = 0
	return nil
}

type readResult struct {
	value float64
	err   error
}

// read samples every field, a failed or timed out read marks the field absent.
func (p *Poller) read(ctx context.Context) Sample {
	// in flight reads are allowed to complete after a stop signal
	ctx = context.WithoutCancel(ctx)
	timeout := p.instrument.Timeout()
	sample := NewSample(p.now())

	for _, field := range p.instrument.Fields {
		f := field
		res, err := async.WithTimeout(timeout, func() interface{} {
			readCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			v, err := p.source.ReadNumericResult(readCtx, f.Path, f.Unit)
			return readResult{value: v, err: err}
		})

		if err != nil {
			sample.SetAbsent(f.Name, fmt.Errorf("reading %s: %w", f.Path, err))
		} else if r := res.(readResult); r.err != nil {
			sample.SetAbsent(f.Name, r.err)
		} else {
			sample.Set(f.Name, r.value)
		}
	}

	for name, reason := range sample.Reasons {
		log.Debug("field %s absent: %v", name, reason)
	}

	return sample
}

// onSample compares the sample with the previous one and persists it if changed.
func (p *Poller) onSample(ctx context.Context, settings Settings, sample Sample) {
	changed := !p.hasPrevious || !sample.Equal(p.previous)
	p.previous = sample
	p.hasPrevious = true

	var id uint
	persisted := false

	if changed {
		if !sample.HasValues() {
			log.Debug("sample changed but every field is absent, not saving")
		} else if saved, err := p.persist(settings, sample); err != nil {
			log.Error("error saving measurement: %v", err)
			// nothing was written, detect the same change again next cycle
			p.hasPrevious = false
		} else {
			id, persisted = saved, true
			log.Info("measurement %d saved: %s", id, sample)
		}
	}

	p.monitor.Publish(sample, persisted)

	if persisted && p.onPersist != nil {
		p.onPersist(ctx, id)
	}
}

func (p *Poller) persist(settings Settings, sample Sample) (uint, error) {
	key, err := p.newKey()
	if err != nil {
		return 0, fmt.Errorf("error generating upload key: %v", err)
	}

	m := sample.Measurement(settings.clone(), key)
	return p.sink.SaveMeasurement(&m)
}
