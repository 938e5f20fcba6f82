package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewStream(t *testing.T) {
	_, r := newTestServer(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	post := func(path string, body any) *http.Response {
		b, _ := json.Marshal(body)
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
		require.NoError(t, err)
		return resp
	}

	resp := post("/api/views", map[string]any{"screen": "customers"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap snapshotBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/views/" + snap.ID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var ev struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, "snapshot", ev.Type)

	resp = post("/api/views/"+snap.ID+"/display", map[string]any{"op": "toggleBorder"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, "display", ev.Type)
	assert.Contains(t, string(ev.Data), `"bordered":true`)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/views/"+snap.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	err = wsjson.Read(ctx, conn, &ev)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestStreamUnknownView(t *testing.T) {
	_, r := newTestServer(t)
	w := do(r, http.MethodGet, "/api/views/nope/ws", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
