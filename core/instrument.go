package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Instrument is the data source polled for numeric results.
type Instrument interface {
	// ReadNumericResult fails with ErrResultUnavailable if the result does
	// not currently exist.
	ReadNumericResult(ctx context.Context, path, unit string) (float64, error)
	IsConnected() bool
	// Connect fails with a *ConnectionError.
	Connect(ctx context.Context, host string, port int) (string, error)
}

type InstrumentConfig struct {
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	TimeoutMs int      `yaml:"timeout_ms"`
	Fields    []*Field `yaml:"fields"`
}

func (c *InstrumentConfig) Compile() error {
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 2000
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("no instrument fields configured")
	}

	seen := make(map[string]bool)
	for _, f := range c.Fields {
		if err := f.Compile(); err != nil {
			return err
		} else if seen[f.Name] {
			return fmt.Errorf("duplicated field %s", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

func (c InstrumentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// HTTPInstrument talks to an instrument JSON gateway.
type HTTPInstrument struct {
	sync.Mutex

	client  *http.Client
	baseURL string
	connID  string
}

func NewHTTPInstrument(timeout time.Duration) *HTTPInstrument {
	return &HTTPInstrument{
		client: &http.Client{Timeout: timeout},
	}
}

func (i *HTTPInstrument) IsConnected() bool {
	i.Lock()
	defer i.Unlock()
	return i.connID != ""
}

func (i *HTTPInstrument) Connect(ctx context.Context, host string, port int) (string, error) {
	baseURL := fmt.Sprintf("http://%s:%d", host, port)

	var reply struct {
		ID string `json:"id"`
	}
	if err := i.get(ctx, baseURL+"/connect", &reply, nil); err != nil {
		return "", &ConnectionError{Host: host, Port: port, Err: err}
	} else if reply.ID == "" {
		return "", &ConnectionError{Host: host, Port: port, Err: fmt.Errorf("empty connection id")}
	}

	i.Lock()
	defer i.Unlock()
	i.baseURL = baseURL
	i.connID = reply.ID

	return reply.ID, nil
}

func (i *HTTPInstrument) ReadNumericResult(ctx context.Context, path, unit string) (float64, error) {
	i.Lock()
	baseURL, connID := i.baseURL, i.connID
	i.Unlock()

	if connID == "" {
		return 0, fmt.Errorf("not connected")
	}

	q := url.Values{
		"conn": {connID},
		"path": {path},
		"unit": {unit},
	}

	var reply struct {
		Value *float64 `json:"value"`
	}
	if err := i.get(ctx, baseURL+"/results?"+q.Encode(), &reply, ErrResultUnavailable); err != nil {
		return 0, err
	} else if reply.Value == nil {
		return 0, fmt.Errorf("%w: %s", ErrResultUnavailable, path)
	}

	return *reply.Value, nil
}

func (i *HTTPInstrument) disconnect() {
	i.Lock()
	defer i.Unlock()
	i.connID = ""
}

// isTimeout is true for a single slow request, the gateway is still there.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// get decodes the JSON reply of targetURL, a 404 is reported as notFound when set.
func (i *HTTPInstrument) get(ctx context.Context, targetURL string, into interface{}, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return err
	}

	resp, err := i.client.Do(req)
	if err != nil {
		if !isTimeout(err) {
			// the gateway is gone, force a reconnection
			i.disconnect()
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFound != nil {
		return notFound
	} else if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("response %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(into)
}
