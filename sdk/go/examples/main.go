package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/mr-kenikh/viem/sdk/go/viem"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/batches", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(viem.BatchRecord{
				ID:        "batch-demo",
				Status:    "pending",
				CreatedAt: time.Now().Unix(),
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/batches/batch-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(viem.BatchRecord{
			ID:      "batch-demo",
			Status:  "succeeded",
			BatchID: "0x1a2b3c",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := viem.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record, err := client.SubmitBatch(ctx, viem.BatchSubmission{
		Account: "treasury",
		Chain:   "mainnet",
		Calls: []viem.CallInput{
			{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Value: "69420"},
			{
				To:       "0x5FbDB2315678afecb367f032d93F642f64180aa3",
				ABI:      `[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}]}]`,
				Function: "transfer",
				Args:     []any{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "100"},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted batch %s (%s)\n", record.ID, record.Status)

	final, err := client.GetBatch(ctx, record.ID)
	if err != nil {
		panic(err)
	}
	fmt.Printf("batch %s finished with status %s, wallet batch id %s\n", final.ID, final.Status, final.BatchID)
}
