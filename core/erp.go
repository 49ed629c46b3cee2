package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evilsocket/islazy/log"

	"github.com/evilsocket/meterlink/models"
)

type ERP struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Database  string `yaml:"database"`
	Login     string `yaml:"login"`
	Password  string `yaml:"password"`
	Operation string `yaml:"operation"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// seconds between standalone retry passes, 0 to only sync after a new measurement
	PeriodSecs int `yaml:"period"`
}

func (e *ERP) Compile() error {
	if e.Operation == "" {
		e.Operation = "create_measurement"
	}
	if e.TimeoutMs <= 0 {
		e.TimeoutMs = 10000
	}
	if e.Enabled && e.URL == "" {
		return fmt.Errorf("erp url is required when erp is enabled")
	}
	return nil
}

type erpLogin struct {
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type erpItem struct {
	Field      string            `json:"field"`
	Value      float64           `json:"value"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type erpRecord struct {
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	SampleName     string    `json:"sample_name"`
	ParameterName  string    `json:"parameter_name"`
	PositionName   string    `json:"position_name"`
	SlideID        string    `json:"slide_id"`
	Operator       string    `json:"operator"`
	MeasuredAt     time.Time `json:"measured_at"`
	Items          []erpItem `json:"items"`
}

type erpRequest struct {
	Login     erpLogin  `json:"login"`
	Operation string    `json:"operation"`
	Record    erpRecord `json:"record"`
}

type erpResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Result *struct {
		IDs      []int64 `json:"ids"`
		Rollback bool    `json:"rollback"`
	} `json:"result"`
}

// ERPClient submits measurements to the remote ERP endpoint.
type ERPClient struct {
	conf   ERP
	client *http.Client
}

func NewERPClient(conf ERP) *ERPClient {
	return &ERPClient{
		conf:   conf,
		client: &http.Client{Timeout: time.Duration(conf.TimeoutMs) * time.Millisecond},
	}
}

func (c *ERPClient) payload(m models.Measurement) erpRequest {
	attrs := make(map[string]string, len(m.Attributes))
	for _, a := range m.Attributes {
		attrs[a.Key] = a.Value
	}

	items := make([]erpItem, 0, len(m.Data))
	for _, name := range m.Data.Names() {
		if r := m.Data[name]; r.Valid {
			items = append(items, erpItem{
				Field:      name,
				Value:      r.Value,
				Attributes: attrs,
			})
		}
	}

	return erpRequest{
		Login: erpLogin{
			Database: c.conf.Database,
			User:     c.conf.Login,
			Password: c.conf.Password,
		},
		Operation: c.conf.Operation,
		Record: erpRecord{
			IdempotencyKey: m.UploadKey,
			SampleName:     m.SampleName,
			ParameterName:  m.ParameterName,
			PositionName:   m.PositionName,
			SlideID:        m.SlideID,
			Operator:       m.Operator,
			MeasuredAt:     m.Timestamp,
			Items:          items,
		},
	}
}

// Upload submits a single measurement and returns the identifiers created by
// the ERP. Failures are either a *RejectedError or a *TransportError.
func (c *ERPClient) Upload(ctx context.Context, m models.Measurement) ([]int64, error) {
	body, err := json.Marshal(c.payload(m))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if m.UploadKey != "" {
		req.Header.Set("Idempotency-Key", m.UploadKey)
	}

	log.Debug("POST %s measurement=%d size=%d", c.conf.URL, m.ID, len(body))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	var reply erpResponse
	if err = json.Unmarshal(raw, &reply); err != nil {
		if !isSuccess(resp.StatusCode) {
			return nil, &TransportError{Err: fmt.Errorf("response %d: %s", resp.StatusCode, truncate(raw, 256))}
		}
		return nil, &TransportError{Err: fmt.Errorf("malformed response: %v", err)}
	}

	return classify(resp.StatusCode, raw, reply)
}

func classify(status int, raw []byte, reply erpResponse) ([]int64, error) {
	if reply.Error != nil {
		msg := reply.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("error code %d", reply.Error.Code)
		}
		return nil, &RejectedError{Message: msg}
	} else if !isSuccess(status) {
		return nil, &TransportError{Err: fmt.Errorf("response %d: %s", status, truncate(raw, 256))}
	} else if reply.Result == nil {
		return nil, &TransportError{Err: fmt.Errorf("malformed response: no result")}
	} else if reply.Result.Rollback {
		return nil, &RejectedError{Message: "transaction rolled back"}
	} else if len(reply.Result.IDs) == 0 || reply.Result.IDs[0] <= 0 {
		return nil, &RejectedError{Message: "no record created"}
	}

	return reply.Result.IDs, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func truncate(data []byte, size int) string {
	if len(data) > size {
		return string(data[:size]) + "..."
	}
	return string(data)
}
