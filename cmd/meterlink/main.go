package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evilsocket/islazy/log"

	"github.com/evilsocket/meterlink/core"
)

var (
	conf       = (*core.Config)(nil)
	store      = (*core.Store)(nil)
	aggregator = (*core.Aggregator)(nil)
)

// present logs new samples and upload failure changes, standing in for the
// monitor window.
func present(ctx context.Context, monitor *core.Monitor) {
	ticker := time.NewTicker(time.Duration(presentMs) * time.Millisecond)
	defer ticker.Stop()

	failed := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sample, ok := monitor.TakeNewData(); ok {
				log.Info("[monitor] %s", sample)
			}
			if now := monitor.UploadFailed(); now != failed {
				failed = now
				if failed {
					log.Warning("[monitor] last upload failed")
				} else {
					log.Info("[monitor] uploads recovered")
				}
			}
		}
	}
}

func main() {
	var err error

	flag.Parse()

	setup()
	defer cleanup()

	conf, err = core.Load(confFile)
	if err != nil {
		log.Fatal("error loading configuration from %s: %v", confFile, err)
	}

	store, err = core.OpenStore(conf.Database, debug)
	if err != nil {
		log.Fatal("error opening database %s: %v", conf.Database.URL, err)
	}

	if settingsFile != "" {
		settings, err := core.LoadSettings(settingsFile)
		if err != nil {
			log.Fatal("error loading settings from %s: %v", settingsFile, err)
		} else if err = store.SaveSettings(settings); err != nil {
			log.Fatal("%v", err)
		}
		log.Info("settings imported from %s", settingsFile)
	}

	instrument := core.NewHTTPInstrument(conf.Instrument.Timeout())
	aggregator = core.NewAggregator(conf, store, instrument)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go present(ctx, aggregator.Monitor)

	log.Info("meterlink service starting with database %s ...", conf.Database.URL)

	if err := aggregator.Start(ctx); err != nil {
		log.Fatal("%v", err)
	}

	log.Info("meterlink service stopped")
}
