// Package ingest owns the analysis stream of a job: it dials the backend,
// decodes every inbound message and hands the typed events to a Sink, one
// at a time and in arrival order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/observability"
	"github.com/your-org/pitchview/internal/protocol"
)

const inboxSize = 64

// Sink receives the events of one stream. Calls are serialized. OnError is
// always followed by OnClosed, and OnClosed is the last call for a handle.
type Sink interface {
	OnVideoMeta(meta models.VideoMeta)
	OnProgress(p models.Progress)
	OnFrame(f models.FrameRecord)
	OnBatch(r models.BatchResult)
	OnError(err *BackendError)
	OnClosed(info CloseInfo)
}

type CloseReason string

const (
	// CloseTerminal: a batch result or an error message was delivered.
	CloseTerminal CloseReason = "terminal"
	// CloseStopped: the client closed the handle.
	CloseStopped CloseReason = "stopped"
	// CloseRemote: the backend closed normally without a terminal message.
	CloseRemote CloseReason = "remote"
	// CloseTransport: the connection broke.
	CloseTransport CloseReason = "transport"
)

type CloseInfo struct {
	Reason CloseReason
	// Frames is the number of incremental frames delivered.
	Frames int
	// Err is set for CloseTransport.
	Err error
}

// URLFunc maps a video reference and job id to a stream address.
type URLFunc func(videoRef, jobID string) string

// Controller allows at most one open stream at a time.
type Controller struct {
	dialer Dialer
	urlFor URLFunc

	mu     sync.Mutex
	active *Handle
}

func NewController(dialer Dialer, urlFor URLFunc) *Controller {
	return &Controller{dialer: dialer, urlFor: urlFor}
}

// Open connects to the stream of jobID and starts delivering to sink. It
// fails with ErrAlreadyOpen while another handle is open and with a
// *TransportError when the connection cannot be established.
func (c *Controller) Open(ctx context.Context, jobID, videoRef string, sink Sink) (*Handle, error) {
	url := c.urlFor(videoRef, jobID)

	c.mu.Lock()
	if c.active != nil {
		active := c.active.JobID
		c.mu.Unlock()
		return nil, fmt.Errorf("open stream for job %s (job %s open): %w", jobID, active, ErrAlreadyOpen)
	}
	h := &Handle{
		JobID:   jobID,
		URL:     url,
		sink:    sink,
		inbox:   make(chan []byte, inboxSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		release: c.release,
	}
	c.active = h
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		c.release(h)
		return nil, &TransportError{Op: "dial", URL: url, Err: err}
	}
	h.mu.Lock()
	closed := h.stopped
	h.conn = conn
	h.mu.Unlock()
	if closed {
		_ = conn.Close()
		return nil, &TransportError{Op: "dial", URL: url, Err: errors.New("closed while connecting")}
	}

	observability.ActiveStreams.Inc()
	slog.Info("analysis stream opened", "job_id", jobID, "url", url)

	go h.readPump()
	go h.dispatch()
	return h, nil
}

// Active returns the open handle, or nil.
func (c *Controller) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close closes the open handle, if any.
func (c *Controller) Close() {
	if h := c.Active(); h != nil {
		h.Close()
	}
}

func (c *Controller) release(h *Handle) {
	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()
}

// Handle is one open analysis stream.
type Handle struct {
	JobID string
	URL   string

	conn    Conn
	sink    Sink
	inbox   chan []byte
	closing chan struct{}
	done    chan struct{}
	release func(*Handle)

	closeOnce sync.Once

	mu       sync.Mutex
	stopped  bool
	terminal bool
	readErr  error
}

// Close releases the connection. It is idempotent and safe to call from a
// Sink callback. OnClosed is still delivered once the dispatcher drains.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		if !h.terminal {
			h.stopped = true
		}
		conn := h.conn
		h.mu.Unlock()

		close(h.closing)
		if conn != nil {
			if err := conn.Close(); err != nil {
				slog.Debug("close analysis stream", "job_id", h.JobID, "error", err)
			}
		}
		h.release(h)
	})
}

// Done is closed after the final OnClosed call returns.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) readPump() {
	defer close(h.inbox)
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			h.mu.Lock()
			h.readErr = err
			h.mu.Unlock()
			return
		}
		select {
		case h.inbox <- data:
		case <-h.closing:
			return
		}
	}
}

func (h *Handle) dispatch() {
	frames := 0
	defer func() {
		info := h.closeInfo(frames)
		h.Close()
		observability.ActiveStreams.Dec()
		observability.StreamsClosed.WithLabelValues(string(info.Reason)).Inc()
		slog.Info("analysis stream closed", "job_id", h.JobID, "reason", info.Reason, "frames", frames)
		h.sink.OnClosed(info)
		close(h.done)
	}()

	for data := range h.inbox {
		if h.isDone() {
			continue
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			observability.ProtocolErrors.Inc()
			slog.Warn("dropping malformed stream message", "job_id", h.JobID, "error", err, "size", len(data))
			continue
		}

		switch m := msg.(type) {
		case protocol.VideoMetaMsg:
			h.sink.OnVideoMeta(m.Meta)
		case protocol.ProgressMsg:
			h.sink.OnProgress(m.Progress)
		case protocol.FrameMsg:
			frames++
			observability.FramesIngested.Inc()
			h.sink.OnFrame(m.Frame)
		case protocol.BatchResultMsg:
			h.markTerminal()
			observability.FramesIngested.Add(float64(len(m.Result.Frames)))
			h.sink.OnBatch(m.Result)
			h.Close()
		case protocol.ErrorMsg:
			h.markTerminal()
			h.sink.OnError(&BackendError{Message: m.Message})
			h.Close()
		}
	}
}

// isDone reports whether further messages must be ignored.
func (h *Handle) isDone() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminal || h.stopped
}

func (h *Handle) markTerminal() {
	h.mu.Lock()
	h.terminal = true
	h.mu.Unlock()
}

func (h *Handle) closeInfo(frames int) CloseInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	info := CloseInfo{Frames: frames}
	switch {
	case h.terminal:
		info.Reason = CloseTerminal
	case h.stopped:
		info.Reason = CloseStopped
	case h.readErr == nil || websocket.IsCloseError(h.readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		info.Reason = CloseRemote
	default:
		info.Reason = CloseTransport
		info.Err = &TransportError{Op: "read", URL: h.URL, Err: h.readErr}
	}
	return info
}

// IsTransport reports whether err is a connect or read failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
