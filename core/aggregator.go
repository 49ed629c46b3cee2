package core

import (
	"context"
	"sync"
	"time"

	"github.com/evilsocket/islazy/log"
)

// Aggregator wires the store, the poller and the ERP reporter together.
type Aggregator struct {
	Monitor *Monitor

	conf       *Config
	store      *Store
	instrument Instrument
	poller     *Poller
	reporter   *Reporter
}

func NewAggregator(conf *Config, store *Store, instrument Instrument) *Aggregator {
	a := &Aggregator{
		Monitor:    NewMonitor(),
		conf:       conf,
		store:      store,
		instrument: instrument,
	}

	a.poller = NewPoller(conf.Poller, conf.Instrument, instrument, store, store, a.Monitor)

	if conf.ERP.Enabled {
		a.reporter = NewReporter(store, NewERPClient(conf.ERP), a.Monitor)
		// sync right after each new measurement
		a.poller.OnPersist(func(ctx context.Context, id uint) {
			a.onReport(ctx)
		})
	} else {
		log.Warning("erp upload is disabled, measurements will only be stored locally")
	}

	return a
}

func (a *Aggregator) onReport(ctx context.Context) {
	if _, err := a.reporter.Sync(ctx); err != nil {
		log.Error("error synchronizing measurements: %v", err)
	}
}

// Start runs until the context is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	wg := sync.WaitGroup{}

	if a.reporter != nil {
		// deliver whatever was left over by a previous run
		a.onReport(ctx)

		if a.conf.ERP.PeriodSecs > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				period := time.Duration(a.conf.ERP.PeriodSecs) * time.Second
				log.Info("retrying uploads every %s", period)

				ticker := time.NewTicker(period)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						a.onReport(ctx)
					}
				}
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.poller.Run(ctx)
	}()

	wg.Wait()

	return nil
}
