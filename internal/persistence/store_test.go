package persistence

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

type mockStore struct {
	err       error
	calls     int
	responses int
}

func (m *mockStore) Store(context.Context, resource.Kind, int, data.TelemetryRecord) error {
	m.calls++
	return m.err
}

type mockResponseStore struct {
	mockStore
}

func (m *mockResponseStore) StoreResponse(context.Context, resource.Kind, data.CommandRecord) error {
	m.responses++
	return m.err
}

func TestFanout_Empty(t *testing.T) {
	f := NewFanout()
	err := f.Store(context.Background(), resource.ConstrainedSensorMsg, 1, data.TelemetryRecord{})
	if !errors.Is(err, ErrNoStores) {
		t.Errorf("Store() error = %v, want ErrNoStores", err)
	}
}

func TestFanout_WritesAll(t *testing.T) {
	a, b := &mockStore{}, &mockStore{}
	f := NewFanout()
	f.Add("a", a)
	f.Add("b", b)

	if err := f.Store(context.Background(), resource.ConstrainedSensorMsg, 1, data.TelemetryRecord{Name: "x"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", a.calls, b.calls)
	}
	if got := strings.Join(f.Names(), ","); got != "a,b" || f.Len() != 2 {
		t.Errorf("Names() = %s", got)
	}
}

func TestFanout_FailureDoesNotShortCircuit(t *testing.T) {
	cause := errors.New("disk full")
	a, b := &mockStore{err: cause}, &mockStore{}
	f := NewFanout()
	f.Add("sqlite", a)
	f.Add("redis", b)

	err := f.Store(context.Background(), resource.ConstrainedSensorMsg, 1, data.TelemetryRecord{})
	if !errors.Is(err, cause) || !strings.Contains(err.Error(), "sqlite") {
		t.Errorf("Store() error = %v", err)
	}
	if b.calls != 1 {
		t.Error("second store skipped after first failed")
	}
}

func TestFanout_StoreResponse(t *testing.T) {
	plain := &mockStore{}
	rs := &mockResponseStore{}
	f := NewFanout()
	f.Add("plain", plain)
	f.Add("responses", rs)

	if err := f.StoreResponse(context.Background(), resource.ConstrainedActuatorResponse, data.CommandRecord{}); err != nil {
		t.Fatalf("StoreResponse() error = %v", err)
	}
	if rs.responses != 1 {
		t.Errorf("responses = %d, want 1", rs.responses)
	}
	if plain.calls != 0 {
		t.Error("telemetry-only store received a response")
	}
}
