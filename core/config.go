package core

import (
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Database   Database         `yaml:"database"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Poller     PollerConfig     `yaml:"poller"`
	ERP        ERP              `yaml:"erp"`
}

func (c *Config) Compile() error {
	if err := c.Database.Compile(); err != nil {
		return err
	} else if err = c.Instrument.Compile(); err != nil {
		return err
	} else if err = c.Poller.Compile(); err != nil {
		return err
	}
	return c.ERP.Compile()
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	conf := Config{}

	if err = yaml.Unmarshal(data, &conf); err != nil {
		return nil, err
	}

	if err = conf.Compile(); err != nil {
		return nil, err
	}

	return &conf, nil
}

// LoadSettings reads a configuration snapshot from a YAML file.
func LoadSettings(filename string) (Settings, error) {
	settings := Settings{}

	data, err := os.ReadFile(filename)
	if err != nil {
		return settings, err
	}

	if err = yaml.Unmarshal(data, &settings); err != nil {
		return settings, err
	}

	return settings, settings.Validate()
}
