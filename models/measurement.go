package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Reading is a numeric value or its explicit absence.
type Reading struct {
	Value float64
	Valid bool
}

func Present(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

func Absent() Reading {
	return Reading{}
}

func (r Reading) Equal(o Reading) bool {
	if r.Valid != o.Valid {
		return false
	}
	return !r.Valid || r.Value == o.Value
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Absent()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Present(v)
	return nil
}

// Fields maps a field name (W1, H2, ...) to its reading.
type Fields map[string]Reading

// Names returns the field names in lexical order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Measurement struct {
	ID            uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	SampleName    string       `gorm:"index;size:255;not null;column:sample_name" json:"sample_name"`
	ParameterName string       `gorm:"index;size:255;not null;column:parameter_name" json:"parameter_name"`
	PositionName  string       `gorm:"index;size:255;not null;column:position_name" json:"position_name"`
	SlideID       string       `gorm:"size:255;column:slide_id" json:"slide_id"`
	Operator      string       `gorm:"size:255;column:operator" json:"operator"`
	Data          Fields       `gorm:"serializer:json;type:text;column:measurement_data" json:"measurement_data"`
	UploadStatus  UploadStatus `gorm:"index;size:16;not null;default:'NotUploaded';column:erp_upload_status" json:"erp_upload_status"`
	UploadKey     string       `gorm:"size:32;column:upload_key" json:"upload_key"`
	UploadedAt    *time.Time   `gorm:"column:uploaded_at" json:"uploaded_at,omitempty"`
	Timestamp     time.Time    `gorm:"index;not null;column:timestamp" json:"timestamp"`
	Attributes    []Attribute  `gorm:"foreignKey:MeasurementID;constraint:OnDelete:CASCADE" json:"attributes"`
}

func (Measurement) TableName() string {
	return "measurements"
}

// HasValues is true if at least one field carries a value.
func (m Measurement) HasValues() bool {
	for _, r := range m.Data {
		if r.Valid {
			return true
		}
	}
	return false
}

// Attribute is a SOP parameter copied on the measurement at capture time.
type Attribute struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	MeasurementID uint   `gorm:"index;not null;column:measurement_id" json:"-"`
	Key           string `gorm:"size:255;not null;column:key" json:"key"`
	Value         string `gorm:"type:text;column:value" json:"value"`
}

func (Attribute) TableName() string {
	return "measurement_attributes"
}
