package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/roadsense/roadhub/idempotency"
	"github.com/roadsense/roadhub/observability"
	"github.com/roadsense/roadhub/store"
)

type API struct {
	store    store.Store
	hub      *SubscriptionHub
	ingestor *Ingestor

	idempotency *idempotency.Store

	// Storm Protection
	createLimiter *rate.Limiter
}

func NewAPI(s store.Store, hub *SubscriptionHub, ingestor *Ingestor, idempotencyStore *idempotency.Store) *API {
	return &API{
		store:       s,
		hub:         hub,
		ingestor:    ingestor,
		idempotency: idempotencyStore,
		// Allow 50 create batches/sec, burst 100
		createLimiter: rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Handler builds the full route table. main and the tests share it.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/processed_agent_data", a.handleRecords)
	mux.HandleFunc("/processed_agent_data/", a.handleRecords)
	mux.HandleFunc("/ws/", a.handleSubscribe)

	// Metrics Endpoint
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Wrapper for capturing response
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}

func (a *API) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Idempotency-Key")
		if key == "" {
			next(w, r)
			return
		}

		if resp, found := a.idempotency.Get(r.Context(), key); found {
			for k, v := range resp.Headers {
				for _, val := range v {
					w.Header().Add(k, val)
				}
			}
			w.WriteHeader(resp.StatusCode)
			w.Write(resp.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next(rec, r)

		a.idempotency.Set(r.Context(), key, idempotency.Response{
			StatusCode: rec.statusCode,
			Body:       rec.body,
			Headers:    rec.Header(),
		})
	}
}

// writeRateLimitError writes a 429 response with Jittered Retry-After
func (a *API) writeRateLimitError(w http.ResponseWriter, endpoint string) {
	observability.APIRateLimited.WithLabelValues(endpoint).Inc()

	// Jitter: 1s base + 0-1000ms random
	retryAfter := 1000 + rand.Intn(1000)
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter/1000)) // Seconds
	http.Error(w, "Too Many Requests (Storm Protection Active)", http.StatusTooManyRequests)
}

// handleRecords dispatches /processed_agent_data requests: collection
// operations on the bare path, per-record operations on /{id}.
func (a *API) handleRecords(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(r.URL.Path, "/")
	if trimmed == "processed_agent_data" {
		switch r.Method {
		case http.MethodGet:
			a.handleListRecords(w, r)
		case http.MethodPost:
			a.withIdempotency(a.handleCreateRecords)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		http.Error(w, "Invalid record id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.handleGetRecord(w, r, id)
	case http.MethodPut:
		a.handleUpdateRecord(w, r, id)
	case http.MethodDelete:
		a.handleDeleteRecord(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreateRecords ingests an ordered batch of submissions. The
// whole batch is validated before anything is persisted.
func (a *API) handleCreateRecords(w http.ResponseWriter, r *http.Request) {
	// Storm Protection
	if !a.createLimiter.Allow() {
		a.writeRateLimitError(w, "create")
		return
	}

	var submissions []store.RecordSubmission
	if err := json.NewDecoder(r.Body).Decode(&submissions); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	records := make([]*store.ProcessedRecord, 0, len(submissions))
	for idx := range submissions {
		rec, err := submissions[idx].ToRecord()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		records = append(records, rec)
	}

	if err := a.ingestor.Ingest(r.Context(), records); err != nil {
		log.Printf("failed to persist record batch: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "created",
		"created": len(records),
	})
}

func (a *API) handleGetRecord(w http.ResponseWriter, r *http.Request, id int64) {
	rec, err := a.store.GetRecord(r.Context(), id)
	if err != nil {
		log.Printf("failed to read record %d: %v", id, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (a *API) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.ListRecords(r.Context())
	if err != nil {
		log.Printf("failed to list records: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*store.ProcessedRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (a *API) handleUpdateRecord(w http.ResponseWriter, r *http.Request, id int64) {
	var submission store.RecordSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := submission.ToRecord()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := a.store.UpdateRecord(r.Context(), id, rec)
	if err != nil {
		log.Printf("failed to update record %d: %v", id, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if updated == nil {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (a *API) handleDeleteRecord(w http.ResponseWriter, r *http.Request, id int64) {
	deleted, err := a.store.DeleteRecord(r.Context(), id)
	if err != nil {
		log.Printf("failed to delete record %d: %v", id, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if deleted == nil {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deleted)
}
