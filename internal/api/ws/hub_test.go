package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/playback"
	"github.com/your-org/pitchview/internal/series"
	"github.com/your-org/pitchview/internal/session"
	"github.com/your-org/pitchview/pkg/dto"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(models.UnitPixels)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/v1/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		<-hub.done
		srv.Close()
	})
	return hub, srv
}

func connect(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_BroadcastsRenderView(t *testing.T) {
	hub, srv := startHub(t)
	conn := connect(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	frames := []models.FrameRecord{
		{FrameNum: 1, Image: []byte("jpeg-1"), Metrics: models.MetricMap{models.MetricStrideAngle: 40}},
		{FrameNum: 2, Metrics: models.MetricMap{}},
	}
	view := playback.View{
		Index:  1,
		Total:  2,
		Frame:  frames[0],
		Cursor: models.Cursor{Position: 1, Playing: true},
		Series: series.Window(frames, 1, 150),
	}
	hub.Publish(session.Event{Type: session.EventRender, View: &view})

	ev := readEvent(t, conn)
	assert.Equal(t, "render", ev.Type)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, 1, ev.Frame.FrameNum)
	assert.Equal(t, "anBlZy0x", ev.Frame.Image)
	require.NotNil(t, ev.Cursor)
	assert.True(t, ev.Cursor.Playing)
	require.NotNil(t, ev.Series)
	assert.Equal(t, []int{1, 2}, ev.Series.Labels)
	require.Len(t, ev.Series.Lines["stride_angle"], 2)
	assert.Nil(t, ev.Series.Lines["stride_angle"][1])
	assert.Equal(t, "步幅角度 (度)", ev.Series.Legend["stride_angle"])
}

func TestHub_FiltersByJob(t *testing.T) {
	hub, srv := startHub(t)
	conn := connect(t, srv, "?job_id=42")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	other := models.JobSession{JobID: "7", Status: models.SessionStreaming}
	mine := models.JobSession{JobID: "42", Status: models.SessionCompleted, FinalPrediction: "好球"}
	hub.Publish(session.Event{Type: session.EventSession, JobID: "7", Session: &other})
	hub.Publish(session.Event{Type: session.EventSession, JobID: "42", Session: &mine})

	ev := readEvent(t, conn)
	assert.Equal(t, "42", ev.JobID)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "completed", ev.Session.Status)
	assert.Equal(t, "好球", ev.Session.FinalPrediction)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t)
	conn := connect(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutViewers(t *testing.T) {
	hub := NewHub(models.UnitMeters)
	for i := 0; i < 300; i++ {
		hub.Publish(session.Event{Type: session.EventDisplay, Display: &session.Display{Status: "x"}})
	}
	assert.Len(t, hub.broadcast, cap(hub.broadcast))
}
