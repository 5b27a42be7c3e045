package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"app_insights/internal/adapters/rest"
	"app_insights/internal/domain"
)

func TestGet_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(503)
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	defer ts.Close()

	cl := rest.New("test", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var out struct{ OK bool }
	if err := cl.Get(ctx, "probe", ts.URL, &out); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !out.OK {
		t.Fatalf("unexpected payload: %+v", out)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 calls, got %d", n)
	}
}

func TestGet_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrForbidden},
	}
	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		err := rest.New("test", 100).Get(context.Background(), "probe", ts.URL, &struct{}{})
		ts.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestGet_BadStatusCarriesBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad aggregation \n"))
	}))
	defer ts.Close()

	err := rest.New("test", 100).Get(context.Background(), "probe", ts.URL, &struct{}{})
	var se *rest.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 400 || se.Body != "bad aggregation" {
		t.Fatalf("unexpected status error: %+v", se)
	}
}

func TestDo_BasicAuthAndBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "alice" || p != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPut || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer ts.Close()

	cl := rest.New("test", 100, rest.WithBasicAuth("alice", "secret"))
	var out map[string]string
	if err := cl.Put(context.Background(), "probe", ts.URL, map[string]string{"name": "x"}, &out); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out["echo"] != "x" {
		t.Fatalf("unexpected echo: %+v", out)
	}
}

func TestGet_InvalidJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer ts.Close()

	err := rest.New("test", 100).Get(context.Background(), "probe", ts.URL, &struct{}{})
	if !errors.Is(err, domain.ErrUnexpectedJSON) {
		t.Fatalf("expected ErrUnexpectedJSON, got %v", err)
	}
}
