package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/immdipu/follower-detector/internal/build"
	"github.com/immdipu/follower-detector/internal/bus"
	"github.com/immdipu/follower-detector/internal/intercept"
	"github.com/immdipu/follower-detector/internal/ledger"
	"github.com/immdipu/follower-detector/internal/payload"
)

type stubForwarder struct{}

func (stubForwarder) Forward(_ context.Context,
	req intercept.Request) (intercept.Response, error) {

	return intercept.Response{
		Status: 200,
		Body:   []byte(`{"echo":"` + req.URL + `"}`),
	}, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	logger := build.NewTestLogger()
	interceptor := intercept.New(intercept.Config{
		Bus:       bus.New(),
		Templates: payload.NewStore("user_id"),
		Forwarder: stubForwarder{},
		Snapshots: ledger.NewMockLedger(),
		Endpoints: intercept.DefaultEndpoints(),
		Logger:    logger,
	})

	server := NewServer(interceptor, logger)
	httpSrv := httptest.NewServer(server)
	t.Cleanup(httpSrv.Close)
	t.Cleanup(server.Close)

	return server, httpSrv
}

func dial(t *testing.T, httpSrv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t,
		conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg Message
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))

	return msg
}

// TestBridgeRoundTrip verifies an observed call is answered under its
// correlation ID with the forwarded response.
func TestBridgeRoundTrip(t *testing.T) {
	t.Parallel()

	server, httpSrv := newTestServer(t)
	conn := dial(t, httpSrv)

	require.Eventually(t, server.Connected,
		time.Second, 10*time.Millisecond)

	req := Message{
		Type:   TypeRequest,
		ID:     "req-1",
		URL:    "https://app.example.com/api/unrelated",
		Method: "GET",
	}
	require.NoError(t, conn.WriteJSON(req))

	resp := readMessage(t, conn)
	require.Equal(t, TypeResponse, resp.Type)
	require.Equal(t, "req-1", resp.ID)
	require.Equal(t, 200, resp.Status)
	require.Contains(t, string(resp.Body), "api/unrelated")
}

// TestBridgeTriggerDelivery verifies trigger commands reach the connected
// page script.
func TestBridgeTriggerDelivery(t *testing.T) {
	t.Parallel()

	server, httpSrv := newTestServer(t)
	conn := dial(t, httpSrv)

	require.Eventually(t, server.Connected,
		time.Second, 10*time.Millisecond)

	require.NoError(t, server.TriggerFollow(context.Background()))
	msg := readMessage(t, conn)
	require.Equal(t, TypeTrigger, msg.Type)
	require.Equal(t, ActionFollow, msg.Action)

	require.NoError(t, server.TriggerUnfollow(context.Background()))
	msg = readMessage(t, conn)
	require.Equal(t, TypeTrigger, msg.Type)
	require.Equal(t, ActionUnfollow, msg.Action)
}

// TestBridgeTriggerWithoutSession verifies triggers fail fast when no page
// script is connected.
func TestBridgeTriggerWithoutSession(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	err := server.TriggerFollow(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
}

// TestBridgeIgnoresMalformedMessages verifies garbage input does not kill
// the session.
func TestBridgeIgnoresMalformedMessages(t *testing.T) {
	t.Parallel()

	server, httpSrv := newTestServer(t)
	conn := dial(t, httpSrv)

	require.Eventually(t, server.Connected,
		time.Second, 10*time.Millisecond)

	err := conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	require.NoError(t, err)

	// The session survives and still answers real requests.
	req := Message{Type: TypeRequest, ID: "req-2", URL: "x", Method: "GET"}
	require.NoError(t, conn.WriteJSON(req))

	resp := readMessage(t, conn)
	require.Equal(t, "req-2", resp.ID)
}

// TestHTTPTrigger verifies the sidecar trigger posts to the action
// endpoints and surfaces rejections.
func TestHTTPTrigger(t *testing.T) {
	t.Parallel()

	var gotPaths []string
	sidecar := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotPaths = append(gotPaths, r.URL.Path)
			if strings.HasSuffix(r.URL.Path, ActionUnfollow) {
				w.WriteHeader(http.StatusBadGateway)
			}
		}))
	t.Cleanup(sidecar.Close)

	trigger := NewHTTPTrigger(sidecar.URL)

	require.NoError(t, trigger.TriggerFollow(context.Background()))
	require.Error(t, trigger.TriggerUnfollow(context.Background()))
	require.Equal(t,
		[]string{"/actions/follow", "/actions/unfollow"}, gotPaths)
}
