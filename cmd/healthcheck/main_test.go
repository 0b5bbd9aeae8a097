package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddr(t *testing.T) {
	tests := map[string]string{
		"":               "127.0.0.1:8080",
		"garbage":        "127.0.0.1:8080",
		"0.0.0.0:9000":   "127.0.0.1:9000",
		":9000":          "127.0.0.1:9000",
		"[::]:9000":      "[::1]:9000",
		"10.0.0.5:8080":  "10.0.0.5:8080",
		"localhost:8443": "localhost:8443",
	}

	for in, want := range tests {
		assert.Equal(t, want, normalizeAddr(in), "input %q", in)
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "healthy", status: http.StatusOK, body: `{"status":"ok","time":"2026-03-01T09:00:00Z"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, wantErr: "status 500"},
		{name: "degraded", status: http.StatusOK, body: `{"status":"degraded"}`, wantErr: `health status "degraded"`},
		{name: "not json", status: http.StatusOK, body: `ok`, wantErr: "decode health body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, healthPath, r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := probe(context.Background(), srv.Client(), srv.URL+healthPath)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
