package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roadsense/roadhub/idempotency"
	"github.com/roadsense/roadhub/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *SubscriptionHub, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	hub := NewSubscriptionHub(0)
	ingestor := NewIngestor(s, hub, nil)
	api := NewAPI(s, hub, ingestor, idempotency.NewStore(nil))
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)
	return srv, hub, s
}

func createBatchBody() string {
	return `[{
		"road_state": "pothole",
		"agent_data": {
			"user_id": 42,
			"accelerometer": {"x": 1.0, "y": 2.0, "z": 3.0},
			"gps": {"latitude": 50.0, "longitude": 30.0},
			"timestamp": "2024-01-01T00:00:00Z"
		}
	}]`
}

func postJSON(t *testing.T, url string, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request build failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeRecord(t *testing.T, body io.Reader) *store.ProcessedRecord {
	t.Helper()
	var rec store.ProcessedRecord
	if err := json.NewDecoder(body).Decode(&rec); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return &rec
}

func TestCreateAndReadRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/processed_agent_data/", createBatchBody(), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("create: expected 200, got %d: %s", resp.StatusCode, body)
	}

	listResp, err := http.Get(srv.URL + "/processed_agent_data/")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer listResp.Body.Close()

	var records []*store.ProcessedRecord
	if err := json.NewDecoder(listResp.Body).Decode(&records); err != nil {
		t.Fatalf("list decode failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID < 1 {
		t.Errorf("expected assigned id >= 1, got %d", records[0].ID)
	}

	getResp, err := http.Get(srv.URL + "/processed_agent_data/1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", getResp.StatusCode)
	}

	rec := decodeRecord(t, getResp.Body)
	if rec.RoadState != "pothole" || rec.UserID != 42 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.X != 1.0 || rec.Y != 2.0 || rec.Z != 3.0 || rec.Latitude != 50.0 || rec.Longitude != 30.0 {
		t.Errorf("field mismatch: %+v", rec)
	}
}

func TestCreateInvalidTimestamp(t *testing.T) {
	srv, _, s := newTestServer(t)

	body := strings.Replace(createBatchBody(), "2024-01-01T00:00:00Z", "yesterday-ish", 1)
	resp := postJSON(t, srv.URL+"/processed_agent_data/", body, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamp, got %d", resp.StatusCode)
	}

	records, _ := s.ListRecords(context.Background())
	if len(records) != 0 {
		t.Errorf("nothing should be persisted on validation failure, got %d records", len(records))
	}
}

func TestCreateMissingUserID(t *testing.T) {
	srv, _, s := newTestServer(t)

	body := `[{"road_state": "pothole", "agent_data": {"accelerometer": {"x":1,"y":2,"z":3}, "gps": {"latitude":50,"longitude":30}, "timestamp": "2024-01-01T00:00:00Z"}}]`
	resp := postJSON(t, srv.URL+"/processed_agent_data/", body, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user_id, got %d", resp.StatusCode)
	}

	records, _ := s.ListRecords(context.Background())
	if len(records) != 0 {
		t.Errorf("nothing should be persisted on validation failure, got %d records", len(records))
	}
}

func TestGetNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/processed_agent_data/999")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdateRecord(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/processed_agent_data/", createBatchBody(), nil)
	resp.Body.Close()

	update := `{
		"road_state": "smooth",
		"agent_data": {
			"user_id": 42,
			"accelerometer": {"x": 4.0, "y": 5.0, "z": 6.0},
			"gps": {"latitude": 51.0, "longitude": 31.0},
			"timestamp": "2024-02-02T00:00:00Z"
		}
	}`
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/processed_agent_data/1", bytes.NewReader([]byte(update)))
	req.Header.Set("Content-Type", "application/json")
	putResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", putResp.StatusCode)
	}

	updated := decodeRecord(t, putResp.Body)
	if updated.ID != 1 || updated.RoadState != "smooth" || updated.X != 4.0 {
		t.Errorf("unexpected updated record: %+v", updated)
	}

	// Read back returns the new values, not the originals
	getResp, err := http.Get(srv.URL + "/processed_agent_data/1")
	if err != nil {
		t.Fatalf("read after update failed: %v", err)
	}
	defer getResp.Body.Close()
	got := decodeRecord(t, getResp.Body)
	if got.RoadState != "smooth" || got.Latitude != 51.0 {
		t.Errorf("read after update returned stale data: %+v", got)
	}
}

func TestUpdateNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/processed_agent_data/999", strings.NewReader(`{
		"road_state": "smooth",
		"agent_data": {
			"user_id": 42,
			"accelerometer": {"x": 1, "y": 2, "z": 3},
			"gps": {"latitude": 50, "longitude": 30},
			"timestamp": "2024-01-01T00:00:00Z"
		}
	}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteRecord(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/processed_agent_data/", createBatchBody(), nil)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/processed_agent_data/1", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", delResp.StatusCode)
	}

	// Delete returns the record as it existed prior to deletion
	deleted := decodeRecord(t, delResp.Body)
	if deleted.ID != 1 || deleted.RoadState != "pothole" {
		t.Errorf("unexpected deleted record: %+v", deleted)
	}

	// Second delete is a clean not-found
	req2, _ := http.NewRequest(http.MethodDelete, srv.URL+"/processed_agent_data/1", nil)
	del2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	defer del2.Body.Close()
	if del2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", del2.StatusCode)
	}
}

func TestCreateIdempotencyKey(t *testing.T) {
	srv, _, s := newTestServer(t)

	headers := map[string]string{"X-Idempotency-Key": "batch-001"}
	first := postJSON(t, srv.URL+"/processed_agent_data/", createBatchBody(), headers)
	firstBody, _ := io.ReadAll(first.Body)
	first.Body.Close()

	second := postJSON(t, srv.URL+"/processed_agent_data/", createBatchBody(), headers)
	secondBody, _ := io.ReadAll(second.Body)
	second.Body.Close()

	if !bytes.Equal(firstBody, secondBody) {
		t.Errorf("replayed response differs: %s vs %s", firstBody, secondBody)
	}

	records, _ := s.ListRecords(context.Background())
	if len(records) != 1 {
		t.Errorf("idempotent retry must not duplicate records, got %d", len(records))
	}
}
