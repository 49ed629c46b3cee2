package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evilsocket/meterlink/models"
)

func testERPConfig(url string) ERP {
	conf := ERP{
		Enabled:  true,
		URL:      url,
		Database: "lab",
		Login:    "meter",
		Password: "secret",
	}
	_ = conf.Compile()
	return conf
}

func erpMeasurement() models.Measurement {
	return models.Measurement{
		ID:            7,
		SampleName:    "S1",
		ParameterName: "G",
		PositionName:  "P1",
		SlideID:       "S1-P1",
		Operator:      "op",
		UploadKey:     "abc123",
		Timestamp:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Data: models.Fields{
			"W1": models.Present(1.25),
			"H2": models.Absent(),
		},
		Attributes: []models.Attribute{{Key: "lens", Value: "x20"}},
	}
}

func TestERPClientPayload(t *testing.T) {
	var got erpRequest
	var key string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":{"ids":[101]}}`))
	}))
	defer server.Close()

	ids, err := NewERPClient(testERPConfig(server.URL)).Upload(context.Background(), erpMeasurement())
	if err != nil {
		t.Fatalf("upload: %v", err)
	} else if len(ids) != 1 || ids[0] != 101 {
		t.Fatalf("unexpected ids %v", ids)
	}

	if key != "abc123" || got.Record.IdempotencyKey != "abc123" {
		t.Fatalf("expected idempotency key, got header='%s' body='%s'", key, got.Record.IdempotencyKey)
	}
	if got.Login.User != "meter" || got.Login.Password != "secret" || got.Login.Database != "lab" {
		t.Fatalf("unexpected login %+v", got.Login)
	}
	if got.Operation != "create_measurement" {
		t.Fatalf("unexpected operation %s", got.Operation)
	}
	if got.Record.SampleName != "S1" || got.Record.ParameterName != "G" || got.Record.PositionName != "P1" {
		t.Fatalf("unexpected record %+v", got.Record)
	}
	// absent fields are not sent
	if len(got.Record.Items) != 1 || got.Record.Items[0].Field != "W1" || got.Record.Items[0].Value != 1.25 {
		t.Fatalf("unexpected items %+v", got.Record.Items)
	}
	if got.Record.Items[0].Attributes["lens"] != "x20" {
		t.Fatalf("expected item attributes, got %+v", got.Record.Items[0].Attributes)
	}
}

func TestERPClientClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		rejected bool
		ok       bool
	}{
		{"success", http.StatusOK, `{"result":{"ids":[5,6]}}`, false, true},
		{"created", http.StatusCreated, `{"result":{"ids":[77]}}`, false, true},
		{"accepted with rollback", http.StatusAccepted, `{"result":{"ids":[77],"rollback":true}}`, true, false},
		{"explicit error", http.StatusOK, `{"error":{"code":200,"message":"duplicated sample"}}`, true, false},
		{"error with server status", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, true, false},
		{"rollback", http.StatusOK, `{"result":{"ids":[5],"rollback":true}}`, true, false},
		{"no ids", http.StatusOK, `{"result":{"ids":[]}}`, true, false},
		{"non positive id", http.StatusOK, `{"result":{"ids":[0]}}`, true, false},
		{"malformed", http.StatusOK, `<html>`, false, false},
		{"no result", http.StatusOK, `{}`, false, false},
		{"server error", http.StatusBadGateway, `bad gateway`, false, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				_, _ = w.Write([]byte(test.body))
			}))
			defer server.Close()

			_, err := NewERPClient(testERPConfig(server.URL)).Upload(context.Background(), erpMeasurement())

			var rejected *RejectedError
			var transport *TransportError
			switch {
			case test.ok:
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
			case test.rejected:
				if !errors.As(err, &rejected) {
					t.Fatalf("expected rejection, got %v", err)
				}
			default:
				if !errors.As(err, &transport) {
					t.Fatalf("expected transport failure, got %v", err)
				}
			}
		})
	}
}

func TestERPClientConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	var transport *TransportError
	if _, err := NewERPClient(testERPConfig(url)).Upload(context.Background(), erpMeasurement()); !errors.As(err, &transport) {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestERPClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"result":{"ids":[1]}}`))
	}))
	defer server.Close()

	conf := testERPConfig(server.URL)
	conf.TimeoutMs = 20

	var transport *TransportError
	if _, err := NewERPClient(conf).Upload(context.Background(), erpMeasurement()); !errors.As(err, &transport) {
		t.Fatalf("expected transport failure on timeout, got %v", err)
	}
}
