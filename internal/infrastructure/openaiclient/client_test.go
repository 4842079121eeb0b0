package openaiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	})
}

func TestDo_Success(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"ftjob-123","status":"queued"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Do(context.Background(), http.MethodGet, "fine_tuning/jobs/ftjob-123", nil, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/fine_tuning/jobs/ftjob-123" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if resp["id"] != "ftjob-123" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestDo_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"No such job","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "fine_tuning/jobs/nope", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Error(), "No such job") {
		t.Errorf("error %q does not carry the API message", apiErr.Error())
	}
}

func TestDo_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream unavailable")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "models", nil, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Body["error"] != "upstream unavailable" {
		t.Errorf("expected raw body preserved, got %v", apiErr.Body)
	}
}

func TestUploadFile_MissingLocalFileFailsFast(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.UploadFile(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl"), "fine-tune")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "file not found") {
		t.Errorf("unexpected error: %v", err)
	}
	if called {
		t.Error("expected no network call for a missing local file")
	}
}

func TestUploadFile_Multipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.jsonl")
	if err := os.WriteFile(path, []byte(`{"messages":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
		}
		if got := r.FormValue("purpose"); got != "fine-tune" {
			t.Errorf("expected purpose fine-tune, got %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected file part: %v", err)
		} else {
			file.Close()
			if header.Filename != "train.jsonl" {
				t.Errorf("unexpected filename %q", header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"file-abc","purpose":"fine-tune"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.UploadFile(context.Background(), path, "fine-tune")
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if resp["id"] != "file-abc" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestStream_StopsAtDoneAndSkipsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"message\":\"step 1\"}\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, ": comment line\n")
		fmt.Fprint(w, "data: {\"message\":\"step 2\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"message\":\"after done\"}\n\n")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	events, err := client.Stream(context.Background(), http.MethodGet, "fine_tuning/jobs/ftjob-1/events", nil)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var got []string
	for event := range events {
		msg, _ := event["message"].(string)
		got = append(got, msg)
	}

	want := []string{"step 1", "step 2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestStream_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Stream(context.Background(), http.MethodGet, "fine_tuning/jobs/ftjob-1/events", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.StatusCode)
	}
}

func TestCreateFineTuningJob_DefaultHyperparameters(t *testing.T) {
	tests := []struct {
		name       string
		req        CreateJobRequest
		wantHyper  map[string]any
		wantSuffix bool
	}{
		{
			name: "required model gets n_epochs default",
			req: CreateJobRequest{
				TrainingFileID: "file-abc",
				Model:          "o4-mini-2025-04-16",
			},
			wantHyper: map[string]any{"n_epochs": float64(3)},
		},
		{
			name: "explicit hyperparameters pass through",
			req: CreateJobRequest{
				TrainingFileID:  "file-abc",
				Model:           "o4-mini-2025-04-16",
				Hyperparameters: map[string]any{"n_epochs": 5, "batch_size": 8},
				Suffix:          "my-model",
			},
			wantHyper:  map[string]any{"n_epochs": float64(5), "batch_size": float64(8)},
			wantSuffix: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
					t.Errorf("decoding request body: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"id":"ftjob-new","status":"queued"}`)
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			if _, err := client.CreateFineTuningJob(context.Background(), tt.req); err != nil {
				t.Fatalf("CreateFineTuningJob failed: %v", err)
			}

			if gotBody["training_file"] != "file-abc" {
				t.Errorf("unexpected training_file %v", gotBody["training_file"])
			}
			hyper, _ := gotBody["hyperparameters"].(map[string]any)
			if len(hyper) != len(tt.wantHyper) {
				t.Fatalf("expected hyperparameters %v, got %v", tt.wantHyper, hyper)
			}
			for k, v := range tt.wantHyper {
				if hyper[k] != v {
					t.Errorf("hyperparameter %s: expected %v, got %v", k, v, hyper[k])
				}
			}
			if tt.wantSuffix && gotBody["suffix"] != "my-model" {
				t.Errorf("expected suffix in body, got %v", gotBody["suffix"])
			}
		})
	}
}

func TestListFineTuningJobs_QueryAndData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("expected limit=10, got %q", got)
		}
		if got := r.URL.Query().Get("after"); got != "ftjob-prev" {
			t.Errorf("expected after=ftjob-prev, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"ftjob-1"},{"id":"ftjob-2"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	jobs, err := client.ListFineTuningJobs(context.Background(), 10, "ftjob-prev")
	if err != nil {
		t.Fatalf("ListFineTuningJobs failed: %v", err)
	}
	if len(jobs) != 2 || jobs[0]["id"] != "ftjob-1" {
		t.Errorf("unexpected jobs %v", jobs)
	}
}
