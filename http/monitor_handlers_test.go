package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartify/db"
)

func TestInsertDataAndMaxHR(t *testing.T) {
	env := newTestEnv(t, nil)
	device := "HF-" + uuid.NewString()[:8]

	w := env.do(http.MethodPost, "/insertData", `{"maxbpm":151,"av6":88,"minbpm":61,"heartifyID":"`+device+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"message":"Data inserted successfully"}`, w.Body.String())

	w = env.do(http.MethodGet, "/maxHR?heartifyID="+device, "")
	require.Equal(t, http.StatusOK, w.Code)
	var readings []db.Reading
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &readings))
	require.Len(t, readings, 1)
	assert.Equal(t, 151.0, readings[0].MaxBPM)
	assert.Equal(t, 88.0, readings[0].AvgBPM)

	w = env.do(http.MethodGet, "/maxHR?heartifyID=never-seen", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestInsertDataRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{
		`{"maxbpm":151,"av6":88}`,
		`{"maxbpm":0,"av6":88,"minbpm":61}`,
		`{"maxbpm":"fast"}`,
		``,
	} {
		w := env.do(http.MethodPost, "/insertData", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"message":"Invalid data"}`, w.Body.String())
	}
}

func TestHeartRateSummariesWithSession(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodPost, "/api/signup", signupBody(uuid.NewString()+"@example.com", "HF-"+uuid.NewString()[:8]))
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/insertData", `{"maxbpm":140,"av6":80,"minbpm":60}`).Code)

	for _, path := range []string{"/api/heart-rate/daily", "/api/heart-rate/weekly", "/api/heart-rate/monthly"} {
		w := env.do(http.MethodGet, path, "", cookie)
		require.Equal(t, http.StatusOK, w.Code, path)

		var rows []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows), path)
		assert.NotEmpty(t, rows, path)
	}
}

func TestWebSocketRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	go env.hub.Start()
	defer env.hub.Stop()

	server := httptest.NewServer(env.handler)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(server.URL+"/insertData", "application/json", strings.NewReader(`{"maxbpm":120,"av6":75,"minbpm":58}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "heartRateUpdate", msg.Type)
	assert.Equal(t, "insert", msg.Data["operation"])
	assert.Equal(t, 120.0, msg.Data["maxBPM"])
}
