package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/evilsocket/meterlink/models"
)

// Sample is one synchronized read of every configured field.
type Sample struct {
	Time     time.Time
	Readings models.Fields
	// why a field is absent, indexed by field name
	Reasons map[string]error
}

func NewSample(t time.Time) Sample {
	return Sample{
		Time:     t,
		Readings: make(models.Fields),
		Reasons:  make(map[string]error),
	}
}

func (s *Sample) Set(name string, value float64) {
	s.Readings[name] = models.Present(value)
	delete(s.Reasons, name)
}

func (s *Sample) SetAbsent(name string, reason error) {
	s.Readings[name] = models.Absent()
	s.Reasons[name] = reason
}

// Equal compares the field maps, absent only equals absent.
func (s Sample) Equal(o Sample) bool {
	if len(s.Readings) != len(o.Readings) {
		return false
	}
	for name, r := range s.Readings {
		other, found := o.Readings[name]
		if !found || !r.Equal(other) {
			return false
		}
	}
	return true
}

func (s Sample) HasValues() bool {
	for _, r := range s.Readings {
		if r.Valid {
			return true
		}
	}
	return false
}

func (s Sample) Clone() Sample {
	c := NewSample(s.Time)
	for name, r := range s.Readings {
		c.Readings[name] = r
	}
	for name, err := range s.Reasons {
		c.Reasons[name] = err
	}
	return c
}

func (s Sample) String() string {
	parts := make([]string, 0, len(s.Readings))
	for _, name := range s.Readings.Names() {
		if r := s.Readings[name]; r.Valid {
			parts = append(parts, fmt.Sprintf("%s=%g", name, r.Value))
		} else {
			parts = append(parts, fmt.Sprintf("%s=n/a", name))
		}
	}
	return strings.Join(parts, " ")
}

// Measurement builds the record for this sample as captured under the given
// settings.
func (s Sample) Measurement(settings Settings, uploadKey string) models.Measurement {
	data := make(models.Fields, len(s.Readings))
	for name, r := range s.Readings {
		data[name] = r
	}

	return models.Measurement{
		SampleName:    settings.SampleName,
		ParameterName: settings.GroupName,
		PositionName:  settings.PositionName,
		SlideID:       settings.Slide(),
		Operator:      settings.Operator,
		Data:          data,
		UploadStatus:  models.NotUploaded,
		UploadKey:     uploadKey,
		Timestamp:     s.Time,
		Attributes:    settings.Attributes(),
	}
}
