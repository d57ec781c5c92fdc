package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElasticProvisioner/attribution/internal/slurm"
)

func TestStatusServerRoutes(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	tracker := NewTracker(st, DefaultResolveAttempts)
	tracker.Observe(ctx, []slurm.JobRow{
		{ID: "12345", Name: "train", User: "alice", Partition: "gpu", State: "RUNNING"},
	})

	srv := httptest.NewServer(NewStatusServer(":0", tracker).routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	var counts map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&counts))
	resp.Body.Close()
	assert.Equal(t, 1, counts["pending"])

	resp, err = http.Get(srv.URL + "/jobs")
	require.NoError(t, err)
	var jobs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	resp.Body.Close()
	require.Len(t, jobs, 1)
	assert.Equal(t, "12345", jobs[0]["ID"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	ct := resp.Header.Get("Content-Type")
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(ct, "text/plain"), "unexpected content type %q", ct)
}
