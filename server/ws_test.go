package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/brandlens/queue"
)

func TestServer_JobStream(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/jobs"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the handler a moment to register its subscription
	time.Sleep(100 * time.Millisecond)

	job, err := queue.NewJob("t1", "p1", []string{"q1"}, nil)
	require.NoError(t, err)
	require.NoError(t, f.jobs.Enqueue(job))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got queue.Job
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, queue.JobStatusQueued, got.Status)
}

func TestServer_JobStreamRejectsBadOrigin(t *testing.T) {
	f := newServerFixture(t, 25, 100)
	// Restrict allowed origins for this test
	f.srv.cfg.AllowedOrigins = []string{"https://app.example.com"}

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/jobs"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if conn != nil {
		conn.Close()
	}
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
}
