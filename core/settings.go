package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evilsocket/meterlink/models"
)

// Settings is the configuration snapshot applied to newly captured
// measurements.
type Settings struct {
	SampleName   string            `json:"sample_name" yaml:"sample_name"`
	GroupName    string            `json:"group_name" yaml:"group_name"`
	Operator     string            `json:"operator" yaml:"operator"`
	PositionName string            `json:"position_name" yaml:"position_name"`
	SlideID      string            `json:"slide_id" yaml:"slide_id"`
	SOP          map[string]string `json:"sop" yaml:"sop"`
}

// Active reports whether the identity fields are all set.
func (s Settings) Active() bool {
	return strings.TrimSpace(s.SampleName) != "" &&
		strings.TrimSpace(s.GroupName) != "" &&
		strings.TrimSpace(s.PositionName) != ""
}

func (s Settings) Validate() error {
	if !s.Active() {
		return fmt.Errorf("%w: sample, group and position names are required", ErrInvalidSettings)
	}
	return nil
}

// Slide returns the explicit slide id or the one derived from sample and position.
func (s Settings) Slide() string {
	if s.SlideID != "" {
		return s.SlideID
	}
	return fmt.Sprintf("%s-%s", s.SampleName, s.PositionName)
}

// Attributes copies the SOP parameters, sorted by key.
func (s Settings) Attributes() []models.Attribute {
	keys := make([]string, 0, len(s.SOP))
	for k := range s.SOP {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]models.Attribute, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, models.Attribute{Key: k, Value: s.SOP[k]})
	}
	return attrs
}

func (s Settings) clone() Settings {
	c := s
	if s.SOP != nil {
		c.SOP = make(map[string]string, len(s.SOP))
		for k, v := range s.SOP {
			c.SOP[k] = v
		}
	}
	return c
}
