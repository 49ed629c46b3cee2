package main

import (
	"flag"

	"github.com/evilsocket/islazy/log"
)

var (
	debug        = false
	confFile     = "config.yml"
	settingsFile = ""
	presentMs    = 1000
)

func init() {
	flag.BoolVar(&debug, "debug", debug, "Enable debug logs.")
	flag.StringVar(&log.Output, "log", log.Output, "Log file path or empty for standard output.")
	flag.StringVar(&confFile, "config", confFile, "Configuration file.")
	flag.StringVar(&settingsFile, "settings", settingsFile, "If set, save the settings from this YAML file as current before starting.")
	flag.IntVar(&presentMs, "present", presentMs, "Milliseconds between console status updates.")
}

func setup() {
	if debug {
		log.Level = log.DEBUG
	} else {
		log.Level = log.INFO
	}
	log.OnFatal = log.ExitOnFatal
}

func cleanup() {
	if store != nil {
		if err := store.Close(); err != nil {
			log.Error("error closing database: %v", err)
		}
	}
}
