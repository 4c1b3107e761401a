package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

type fakeTransport struct {
	rows     []RowData
	failures int
	calls    int
	writes   []string
}

func (f *fakeTransport) FetchAll(context.Context) ([]RowData, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("http 503")
	}
	return f.rows, nil
}

func (f *fakeTransport) WriteField(_ context.Context, rowID, field, value string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("http 503")
	}
	f.writes = append(f.writes, rowID+"/"+field+"="+value)
	return nil
}

type adapterCfg struct{}

func (adapterCfg) GetSourceMaxAttempts() int           { return 3 }
func (adapterCfg) GetSourceBackoffBase() time.Duration { return time.Millisecond }
func (adapterCfg) GetSourceRateLimit() float64         { return 1000 }

func newTestAdapter(transport Transport) *Adapter {
	return NewAdapter(transport, NewNormalizer(validator.New()), adapterCfg{}, logger.New("development"))
}

func TestFetchAllRetriesThenSucceeds(t *testing.T) {
	transport := &fakeTransport{
		failures: 2,
		rows:     []RowData{{ID: "42", Name: "Anna K", Phone: "+998901234567"}},
	}
	adapter := newTestAdapter(transport)

	rows, err := adapter.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if transport.calls != 3 {
		t.Fatalf("transport called %d times, want 3", transport.calls)
	}
	if len(rows) != 1 || rows[0].ID != "42" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestFetchAllExhaustsRetries(t *testing.T) {
	transport := &fakeTransport{failures: 10}
	adapter := newTestAdapter(transport)

	_, err := adapter.FetchAll(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if apperr.GetKind(err) != apperr.KindUnavailable {
		t.Fatalf("err kind = %v, want unavailable", apperr.GetKind(err))
	}
	if transport.calls != 3 {
		t.Fatalf("transport called %d times, want exactly the attempt cap", transport.calls)
	}
}

func TestFetchAllSkipsBadRows(t *testing.T) {
	transport := &fakeTransport{rows: []RowData{
		{ID: "", Name: "no id"},
		{ID: "7", Name: "ok", CreatedAt: "2026-03-01 10:00:00"},
		{ID: "8", Name: "bad time", CreatedAt: "next tuesday"},
	}}
	adapter := newTestAdapter(transport)

	rows, err := adapter.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "7" {
		t.Fatalf("expected only the valid row, got %v", rows)
	}
}

func TestWriteFieldRetries(t *testing.T) {
	transport := &fakeTransport{failures: 1}
	adapter := newTestAdapter(transport)

	err := adapter.WriteField(context.Background(), "42", FieldStatus, "Call #1 Needed")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(transport.writes) != 1 || transport.writes[0] != "42/Status=Call #1 Needed" {
		t.Fatalf("unexpected writes: %v", transport.writes)
	}
}
