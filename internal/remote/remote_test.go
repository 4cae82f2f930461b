package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"

	"github.com/gsoxley/OpenMDAO/internal/testutil"
)

func TestPushTrace(t *testing.T) {
	var (
		gotPath     string
		gotEncoding string
		gotBody     []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotEncoding = r.Header.Get("Content-Encoding")
		body, err := io.ReadAll(brotli.NewReader(r.Body))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotBody = body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(server.URL + "/")
	if err != nil {
		t.Fatalf("we should be able to create a client: %v", err)
	}

	payload := "$total 1 2.000000\n"
	err = client.PushTrace(context.Background(), "run-1", "iprof.0", []byte(payload))
	if err != nil {
		t.Fatalf("we should be able to push a trace: %v", err)
	}

	if diff := testutil.Diff(gotPath, "/trace/run-1/iprof.0"); diff != "" {
		t.Fatalf("request path mismatch: %+v\n", diff)
	}
	if diff := testutil.Diff(gotEncoding, "br"); diff != "" {
		t.Fatalf("content encoding mismatch: %+v\n", diff)
	}
	if diff := testutil.Diff(string(gotBody), payload); diff != "" {
		t.Fatalf("payload mismatch: %+v\n", diff)
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "solver@newton 3 0.250000\n")
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("we should be able to create a client: %v", err)
	}

	body, err := client.Fetch(context.Background(), server.URL+"/runs/run-1/iprof.0")
	if err != nil {
		t.Fatalf("we should be able to fetch a trace: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("we should be able to read the response: %v", err)
	}
	if diff := testutil.Diff(string(data), "solver@newton 3 0.250000\n"); diff != "" {
		t.Fatalf("payload mismatch: %+v\n", diff)
	}
}

func TestFetchStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown run", http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("we should be able to create a client: %v", err)
	}

	_, err = client.Fetch(context.Background(), server.URL+"/runs/missing/iprof.0")
	if err == nil {
		t.Fatal("fetching a missing trace should return an error")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("error should carry the status code: %v", err)
	}
	if !strings.Contains(err.Error(), "unknown run") {
		t.Fatalf("error should carry the response body: %v", err)
	}
}
