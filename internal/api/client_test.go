package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

func TestClient_SendsIdentityHeaders(t *testing.T) {
	var gotUser, gotSocket string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-Id")
		gotSocket = r.Header.Get("X-Socket-Id")
		json.NewEncoder(w).Encode([]model.List{})
	}))
	defer server.Close()

	c := New(server.URL, "user-1", "sock-1")
	if _, err := c.Lists(context.Background()); err != nil {
		t.Fatalf("lists: %v", err)
	}
	if gotUser != "user-1" || gotSocket != "sock-1" {
		t.Errorf("headers = %q/%q, want user-1/sock-1", gotUser, gotSocket)
	}
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad request is validation", http.StatusBadRequest, ErrValidation},
		{"conflict is validation", http.StatusConflict, ErrValidation},
		{"unprocessable is validation", http.StatusUnprocessableEntity, ErrValidation},
		{"missing list is not found", http.StatusNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
			}))
			defer server.Close()

			c := New(server.URL, "user-1", "sock-1")
			_, err := c.GetList(context.Background(), "list-1")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	c := New(server.URL, "user-1", "sock-1")
	err := c.Reorder(context.Background(), "list-1", []string{"a::b::"})
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestClient_ErrorMessageSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "year is locked"})
	}))
	defer server.Close()

	c := New(server.URL, "user-1", "sock-1")
	_, err := c.Update(context.Background(), "list-1", model.IncrementalUpdate{Removed: []string{"x"}})
	if err == nil || !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if got := err.Error(); got != "validation rejected: year is locked" {
		t.Errorf("message = %q", got)
	}
}
