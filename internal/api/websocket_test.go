// internal/api/websocket_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryEngine/internal/models"
)

func startHub(t *testing.T, s *testServer) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + editor + "/events"
}

func TestChangeFeedBroadcastsMutations(t *testing.T) {
	s := newTestServer(t)
	srv := startHub(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPut, srv.URL+editor+"/story?id=voyage", strings.NewReader(voyageStory))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.ChangeEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventStorySaved, event.Type)
	assert.Equal(t, "voyage", event.ID)
	assert.NotZero(t, event.Timestamp)
}

func TestChangeFeedRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t)
	srv := startHub(t, s)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, s.hub.ClientCount())
}

func TestChangeFeedClientDisconnect(t *testing.T) {
	s := newTestServer(t)
	srv := startHub(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewWebSocketManager(false, nil, nil, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(models.ChangeEvent{Type: models.EventIndexUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}
