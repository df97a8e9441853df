package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDownload(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("package-bytes"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5*time.Second, zap.NewNop().Sugar())

	body, err := tr.Download(context.Background(), srv.URL, "secret-key")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if string(body) != "package-bytes" {
		t.Errorf("unexpected body: %q", body)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("unexpected Authorization header: %q", gotAuth)
	}
}

func TestDownloadWithoutCredentialOmitsHeader(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5*time.Second, zap.NewNop().Sugar())
	if _, err := tr.Download(context.Background(), srv.URL, ""); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if sawAuth {
		t.Error("Authorization header sent without a credential")
	}
}

func TestDownloadNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5*time.Second, zap.NewNop().Sugar())
	_, err := tr.Download(context.Background(), srv.URL, "")
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestUpload(t *testing.T) {
	var gotBody []byte
	var gotContentType, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5*time.Second, zap.NewNop().Sugar())
	err := tr.Upload(context.Background(), srv.URL, "api-key", []byte(`{"scan":"done"}`))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if string(gotBody) != `{"scan":"done"}` {
		t.Errorf("unexpected body: %q", gotBody)
	}
	if gotContentType != "application/json" {
		t.Errorf("unexpected content type: %q", gotContentType)
	}
	if gotAuth != "Bearer api-key" {
		t.Errorf("unexpected Authorization header: %q", gotAuth)
	}
}

func TestUploadNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5*time.Second, zap.NewNop().Sugar())
	if err := tr.Upload(context.Background(), srv.URL, "bad-key", []byte("{}")); err == nil {
		t.Fatal("expected error for HTTP 403")
	}
}
