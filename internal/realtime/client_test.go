package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer runs a fake realtime endpoint and exposes the server side
// of each accepted connection.
func testServer(t *testing.T, onRequest func(*http.Request)) (string, chan *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	accepted := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onRequest != nil {
			onRequest(r)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		accepted <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	return "ws" + strings.TrimPrefix(srv.URL, "http"), accepted
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	return payload
}

func TestDial_SendsAuthHeadersAndModel(t *testing.T) {
	var gotAuth, gotBeta, gotModel string
	url, accepted := testServer(t, func(r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBeta = r.Header.Get("OpenAI-Beta")
		gotModel = r.URL.Query().Get("model")
	})

	session, err := Dial(t.Context(), Config{URL: url, Model: "test-model"}, "sk-test")
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	<-accepted

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "realtime=v1", gotBeta)
	assert.Equal(t, "test-model", gotModel)
}

func TestSession_SendsClientEvents(t *testing.T) {
	url, accepted := testServer(t, nil)

	session, err := Dial(t.Context(), Config{URL: url}, "sk-test")
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	server := <-accepted

	require.NoError(t, session.UpdateSession(SessionConfig{
		Instructions:     "translate",
		Modalities:       []string{"text"},
		InputAudioFormat: "pcm16",
	}))
	payload := readJSON(t, server)
	assert.Equal(t, EventTypeSessionUpdate, payload["type"])
	assert.NotEmpty(t, payload["event_id"])
	sessionCfg, ok := payload["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "translate", sessionCfg["instructions"])

	// turn_detection must be an explicit null to disable server VAD.
	turnDetection, present := sessionCfg["turn_detection"]
	assert.True(t, present, "turn_detection key must be serialized")
	assert.Nil(t, turnDetection)

	require.NoError(t, session.AppendAudio("QUJD"))
	payload = readJSON(t, server)
	assert.Equal(t, EventTypeInputAudioBufferAppend, payload["type"])
	assert.Equal(t, "QUJD", payload["audio"])

	require.NoError(t, session.CommitInput())
	payload = readJSON(t, server)
	assert.Equal(t, EventTypeInputAudioBufferCommit, payload["type"])

	require.NoError(t, session.CreateResponse("translate it"))
	payload = readJSON(t, server)
	assert.Equal(t, EventTypeResponseCreate, payload["type"])
	response, ok := payload["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "translate it", response["instructions"])
	assert.Equal(t, []any{"text"}, response["modalities"])

	require.NoError(t, session.DeleteItem("item_123"))
	payload = readJSON(t, server)
	assert.Equal(t, EventTypeConversationItemDelete, payload["type"])
	assert.Equal(t, "item_123", payload["item_id"])
}

func TestSession_ReceivesServerEvents(t *testing.T) {
	url, accepted := testServer(t, nil)

	session, err := Dial(t.Context(), Config{URL: url}, "sk-test")
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	server := <-accepted

	raw := `{"type":"conversation.item.created","item":{"id":"item_42","type":"message"}}`
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(raw)))

	select {
	case event := <-session.Events():
		assert.Equal(t, EventTypeConversationItemCreated, event.Type)
		require.NotNil(t, event.Item)
		assert.Equal(t, "item_42", event.Item.ID)
		assert.JSONEq(t, raw, string(event.Raw))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server event")
	}

	raw = `{"type":"response.text.delta","delta":"Hello"}`
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(raw)))

	select {
	case event := <-session.Events():
		assert.Equal(t, EventTypeResponseTextDelta, event.Type)
		assert.Equal(t, "Hello", event.Delta)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server event")
	}
}

func TestSession_RemoteCloseSetsErr(t *testing.T) {
	url, accepted := testServer(t, nil)

	session, err := Dial(t.Context(), Config{URL: url}, "sk-test")
	require.NoError(t, err)
	server := <-accepted

	// Abrupt remote close: the events channel closes and Err is set.
	require.NoError(t, server.Close())

	select {
	case _, ok := <-session.Events():
		assert.False(t, ok, "events channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events channel to close")
	}
	assert.Error(t, session.Err())
}

func TestSession_RemoteCloseReleasesConnection(t *testing.T) {
	url, accepted := testServer(t, nil)

	session, err := Dial(t.Context(), Config{URL: url}, "sk-test")
	require.NoError(t, err)
	server := <-accepted

	require.NoError(t, server.Close())
	for range session.Events() {
		// drain until the read loop exits
	}
	require.Error(t, session.Err())

	// The read loop closed the underlying connection, so writes fail
	// instead of leaking a half-open socket.
	assert.Error(t, session.AppendAudio("QUJD"))
}

func TestSession_LocalCloseIsClean(t *testing.T) {
	url, accepted := testServer(t, nil)

	session, err := Dial(t.Context(), Config{URL: url}, "sk-test")
	require.NoError(t, err)
	<-accepted

	require.NoError(t, session.Close())
	assert.NoError(t, session.Close(), "close is idempotent")

	for range session.Events() {
		// drain until closed
	}
	assert.NoError(t, session.Err())
}

func TestDial_ConnectFailure(t *testing.T) {
	_, err := Dial(t.Context(), Config{URL: "ws://127.0.0.1:1", HandshakeTimeout: 500 * time.Millisecond}, "sk-test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect failed")
}
