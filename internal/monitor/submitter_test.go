package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSubmitterDelivers(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/logs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL)
	err := s.Submit(context.Background(), "/scratch/logs/train-12345.out", "alice", "12345")
	require.NoError(t, err)
	assert.Equal(t, "/scratch/logs/train-12345.out", got.LogPath)
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, "12345", got.JobID)
}

func TestHTTPSubmitterRejectionIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "log_path is outside the allowed root", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL)
	err := s.Submit(context.Background(), "/etc/passwd", "alice", "12345")
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*ErrSubmissionRejected))
	assert.Equal(t, 1, calls)
}
