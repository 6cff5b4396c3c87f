package viem

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitBatchPostsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/batches" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var submission BatchSubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if submission.Account != "treasury" || len(submission.Calls) != 1 {
			t.Fatalf("unexpected submission: %+v", submission)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(BatchRecord{ID: "sub-1", Status: "pending"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	record, err := client.SubmitBatch(context.Background(), BatchSubmission{
		Account: "treasury",
		Calls: []CallInput{
			{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Value: "69420"},
		},
	})
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if record.ID != "sub-1" || record.Status != "pending" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestGetBatchFetchesByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/batches/sub-42" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(BatchRecord{
			ID:      "sub-42",
			Status:  "succeeded",
			BatchID: "0x1a2b",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	record, err := client.GetBatch(context.Background(), "sub-42")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if record.BatchID != "0x1a2b" || record.Status != "succeeded" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestListBatchesSendsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("unexpected limit: %q", got)
		}
		_ = json.NewEncoder(w).Encode([]BatchRecord{{ID: "a"}, {ID: "b"}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	records, err := client.ListBatches(context.Background(), 5)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":  "CHAIN_MISSING",
			"error": "no chain resolvable for call",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.SubmitBatch(context.Background(), BatchSubmission{
		Calls: []CallInput{{Chain: "arbitrum"}},
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "CHAIN_MISSING" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}
