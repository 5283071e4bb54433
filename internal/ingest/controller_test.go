package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
	frames []models.FrameRecord
	failed *BackendError
	batch  *models.BatchResult
	seen   chan string
	closed chan CloseInfo
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		seen:   make(chan string, 256),
		closed: make(chan CloseInfo, 1),
	}
}

func (s *recordingSink) record(ev string) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.seen <- ev
}

func (s *recordingSink) OnVideoMeta(models.VideoMeta) { s.record("meta") }
func (s *recordingSink) OnProgress(models.Progress)   { s.record("progress") }

func (s *recordingSink) OnFrame(f models.FrameRecord) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	s.record(fmt.Sprintf("frame:%d", f.FrameNum))
}

func (s *recordingSink) OnBatch(r models.BatchResult) {
	s.mu.Lock()
	s.batch = &r
	s.mu.Unlock()
	s.record("batch")
}

func (s *recordingSink) OnError(err *BackendError) {
	s.mu.Lock()
	s.failed = err
	s.mu.Unlock()
	s.record("failed")
}

func (s *recordingSink) OnClosed(info CloseInfo) {
	s.record("closed")
	s.closed <- info
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *recordingSink) waitFor(t *testing.T, ev string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-s.seen:
			if got == ev {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q, got %v", ev, s.Events())
		}
	}
}

func (s *recordingSink) waitClosed(t *testing.T) CloseInfo {
	t.Helper()
	select {
	case info := <-s.closed:
		return info
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for close, got %v", s.Events())
		return CloseInfo{}
	}
}

var upgrader = websocket.Upgrader{}

// streamServer runs script for every websocket connection and records the
// requested paths.
func streamServer(t *testing.T, script func(conn *websocket.Conn)) (*Controller, <-chan string) {
	t.Helper()
	paths := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		paths <- r.URL.Path
		script(conn)
	}))
	t.Cleanup(srv.Close)

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	urlFor := func(videoRef, jobID string) string {
		return base + "/ws/analyze_video/" + videoRef + "/" + jobID
	}
	return NewController(NewWebsocketDialer(2*time.Second), urlFor), paths
}

func send(conn *websocket.Conn, msgs ...string) {
	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			return
		}
	}
}

// drain blocks until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestStream_DeliversInArrivalOrder(t *testing.T) {
	ctrl, paths := streamServer(t, func(conn *websocket.Conn) {
		send(conn,
			`{"video_meta":{"width":640,"height":480,"total_frames":2}}`,
			`{"progress":10,"current_frame_num":1}`,
			`{"frame_num":1,"metrics":{"stride_angle":12.5}}`,
			`this is not json`,
			`{"frame_num":2,"metrics":{"hip_angle":90}}`,
			`{"progress":100}`,
			`{"final_prediction":"好球","all_frames_data":[{"frame_num":1,"metrics":{}},{"frame_num":2,"metrics":{}}]}`,
		)
		drain(conn)
	})

	before := testutil.ToFloat64(observability.ProtocolErrors)
	sink := newRecordingSink()
	h, err := ctrl.Open(context.Background(), "42", "pitch.mp4", sink)
	require.NoError(t, err)
	assert.Equal(t, "/ws/analyze_video/pitch.mp4/42", <-paths)

	info := sink.waitClosed(t)
	<-h.Done()

	assert.Equal(t, CloseTerminal, info.Reason)
	assert.Equal(t, 2, info.Frames)
	assert.Equal(t, []string{"meta", "progress", "frame:1", "frame:2", "progress", "batch", "closed"}, sink.Events())
	assert.Equal(t, "好球", sink.batch.FinalPrediction)
	assert.Len(t, sink.batch.Frames, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(observability.ProtocolErrors)-before)
	assert.Nil(t, ctrl.Active())
}

func TestStream_BackendErrorForcesClose(t *testing.T) {
	ctrl, _ := streamServer(t, func(conn *websocket.Conn) {
		send(conn,
			`{"progress":5}`,
			`{"error":"影片解析失敗","progress":50}`,
			`{"frame_num":1,"metrics":{}}`,
		)
		drain(conn)
	})

	sink := newRecordingSink()
	_, err := ctrl.Open(context.Background(), "1", "pitch.mp4", sink)
	require.NoError(t, err)

	info := sink.waitClosed(t)
	assert.Equal(t, CloseTerminal, info.Reason)
	assert.Equal(t, []string{"progress", "failed", "closed"}, sink.Events())
	require.NotNil(t, sink.failed)
	assert.Equal(t, "影片解析失敗", sink.failed.Message)
}

func TestStream_CloseStopsDelivery(t *testing.T) {
	ctrl, _ := streamServer(t, func(conn *websocket.Conn) {
		send(conn, `{"video_meta":{"width":640,"height":480,"total_frames":100}}`)
		drain(conn)
	})

	sink := newRecordingSink()
	h, err := ctrl.Open(context.Background(), "9", "pitch.mp4", sink)
	require.NoError(t, err)
	sink.waitFor(t, "meta")

	h.Close()
	h.Close()
	assert.Nil(t, ctrl.Active())

	info := sink.waitClosed(t)
	assert.Equal(t, CloseStopped, info.Reason)
	assert.NoError(t, info.Err)
	assert.Equal(t, []string{"meta", "closed"}, sink.Events())
}

func TestStream_OneOpenAtATime(t *testing.T) {
	ctrl, _ := streamServer(t, drain)

	first := newRecordingSink()
	h, err := ctrl.Open(context.Background(), "1", "a.mp4", first)
	require.NoError(t, err)

	_, err = ctrl.Open(context.Background(), "2", "b.mp4", newRecordingSink())
	require.ErrorIs(t, err, ErrAlreadyOpen)

	ctrl.Close()
	first.waitClosed(t)
	<-h.Done()

	second := newRecordingSink()
	h2, err := ctrl.Open(context.Background(), "2", "b.mp4", second)
	require.NoError(t, err)
	assert.Same(t, h2, ctrl.Active())
	h2.Close()
	second.waitClosed(t)
}

func TestStream_RemoteCloseWithoutResult(t *testing.T) {
	ctrl, _ := streamServer(t, func(conn *websocket.Conn) {
		send(conn, `{"frame_num":1,"metrics":{}}`)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		drain(conn)
	})

	sink := newRecordingSink()
	_, err := ctrl.Open(context.Background(), "3", "pitch.mp4", sink)
	require.NoError(t, err)

	info := sink.waitClosed(t)
	assert.Equal(t, CloseRemote, info.Reason)
	assert.Equal(t, 1, info.Frames)
}

func TestStream_BrokenConnection(t *testing.T) {
	ctrl, _ := streamServer(t, func(conn *websocket.Conn) {
		send(conn, `{"frame_num":1,"metrics":{}}`)
		conn.UnderlyingConn().Close()
	})

	sink := newRecordingSink()
	_, err := ctrl.Open(context.Background(), "4", "pitch.mp4", sink)
	require.NoError(t, err)

	info := sink.waitClosed(t)
	assert.Equal(t, CloseTransport, info.Reason)
	assert.True(t, IsTransport(info.Err))
}

func TestOpen_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ctrl := NewController(NewWebsocketDialer(time.Second), func(videoRef, jobID string) string {
		return base + "/ws/analyze_video/" + videoRef
	})

	sink := newRecordingSink()
	h, err := ctrl.Open(context.Background(), "", "pitch.mp4", sink)
	assert.Nil(t, h)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "dial", te.Op)
	assert.Nil(t, ctrl.Active())
	assert.Empty(t, sink.Events())
}

func TestOpen_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctrl := NewController(NewWebsocketDialer(time.Second), func(videoRef, jobID string) string {
		return base + "/ws/analyze_video/" + videoRef + "/" + jobID
	})
	_, err := ctrl.Open(context.Background(), "5", "pitch.mp4", newRecordingSink())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Contains(t, err.Error(), "404")
}
