// Package session drives one analysis at a time: upload, stream ingestion,
// playback and the page state shown to viewers. It also loads historical
// records into the same playback buffer.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/pitchview/internal/backend"
	"github.com/your-org/pitchview/internal/ingest"
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/observability"
	"github.com/your-org/pitchview/internal/playback"
)

var (
	// ErrBusy is returned while a job is uploading or streaming.
	ErrBusy = errors.New("an analysis is already in progress")
	// ErrNoSession is returned by Stop when nothing is running.
	ErrNoSession = errors.New("no analysis in progress")
	// ErrCancelled is returned by StartAnalysis when the upload was stopped
	// or replaced before it finished.
	ErrCancelled = errors.New("analysis cancelled")
)

// Backend is the part of the analysis service a session talks HTTP to.
type Backend interface {
	Upload(ctx context.Context, filename string, video io.Reader) (*backend.UploadResult, error)
	GetHistory(ctx context.Context, id string) (*models.HistoryRecord, error)
}

type Streamer interface {
	Open(ctx context.Context, jobID, videoRef string, sink ingest.Sink) (*ingest.Handle, error)
}

// Archive stores frame images of completed jobs.
type Archive interface {
	ArchiveFrames(ctx context.Context, jobID string, frames []models.FrameRecord) error
	LoadFrames(ctx context.Context, jobID string) ([]models.FrameRecord, error)
}

// Recorder mirrors completed analyses.
type Recorder interface {
	SaveAnalysis(ctx context.Context, rec *models.HistoryRecord) error
}

type Options struct {
	Backend      Backend
	Streams      Streamer
	Archive      Archive  // optional
	Recorder     Recorder // optional
	Broadcasters []Broadcaster

	Interval time.Duration
	Window   int
	Clock    playback.Clock

	// LegacyStreamPath opens streams without the job segment.
	LegacyStreamPath bool
	PersistTimeout   time.Duration
}

// run is one JobSession and its stream.
type run struct {
	session models.JobSession
	handle  *ingest.Handle
	meta    models.VideoMeta
	frames  int
}

type Controller struct {
	backend      Backend
	streams      Streamer
	archive      Archive
	recorder     Recorder
	broadcasters []Broadcaster
	legacyPath   bool
	persistTO    time.Duration

	buffer *playback.Buffer

	mu      sync.Mutex
	current *run
	display Display

	wg sync.WaitGroup
}

func NewController(opts Options) *Controller {
	c := &Controller{
		backend:      opts.Backend,
		streams:      opts.Streams,
		archive:      opts.Archive,
		recorder:     opts.Recorder,
		broadcasters: opts.Broadcasters,
		legacyPath:   opts.LegacyStreamPath,
		persistTO:    opts.PersistTimeout,
		display:      idleDisplay(),
	}
	if c.persistTO <= 0 {
		c.persistTO = 30 * time.Second
	}
	c.buffer = playback.NewBuffer(playback.Options{
		Interval: opts.Interval,
		Window:   opts.Window,
		Clock:    opts.Clock,
		Renderer: playback.RendererFunc(c.render),
	})
	return c
}

// StartAnalysis uploads a video and opens its analysis stream. It returns
// once the stream is open or the attempt failed. A Stop during the upload
// does not abort the request; its result is discarded with ErrCancelled.
func (c *Controller) StartAnalysis(ctx context.Context, filename string, video io.Reader) (*models.JobSession, error) {
	c.mu.Lock()
	if prev := c.current; prev != nil {
		if !prev.session.Status.Terminal() {
			c.mu.Unlock()
			return nil, ErrBusy
		}
		if prev.handle != nil {
			prev.handle.Close()
		}
	}
	r := &run{
		session: models.JobSession{
			ID:        uuid.New(),
			Filename:  filename,
			Status:    models.SessionUploading,
			StartedAt: time.Now(),
		},
	}
	c.current = r
	c.buffer.Reset()
	c.display = idleDisplay()
	c.display.UploadEnabled = false
	c.display.StopEnabled = true
	c.display.setStatus(textUploading)
	c.display.setPrediction("")
	c.publishSessionLocked(r)
	c.publishDisplayLocked()
	c.mu.Unlock()

	slog.Info("uploading video", "session_id", r.session.ID, "filename", filename)
	start := time.Now()
	res, err := c.backend.Upload(ctx, filename, video)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.UploadDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != r {
		slog.Info("discarding upload result", "session_id", r.session.ID)
		return nil, ErrCancelled
	}
	if err != nil {
		slog.Warn("upload failed", "session_id", r.session.ID, "error", err)
		c.current = nil
		c.display.UploadEnabled = true
		c.display.StopEnabled = false
		c.display.setError(textUploadFailed(uploadFailureDetail(err)))
		c.publishDisplayLocked()
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}

	r.session.JobID = res.JobID.String()
	c.transitionLocked(r, models.SessionStreaming)
	c.display.setStatus(textStreaming(res.Filename))
	c.display.setPrediction(textAwaitingResult)
	c.publishDisplayLocked()

	jobID := r.session.JobID
	if c.legacyPath {
		jobID = ""
	}
	handle, err := c.streams.Open(ctx, jobID, res.Filename, &runSink{c: c, run: r})
	if err != nil {
		slog.Error("open analysis stream", "session_id", r.session.ID, "job_id", r.session.JobID, "error", err)
		c.finishLocked(r, models.SessionFailed, textTransportError(err))
		return nil, fmt.Errorf("open analysis stream: %w", err)
	}
	r.handle = handle

	s := r.session
	return &s, nil
}

func uploadFailureDetail(err error) string {
	var ue *backend.UploadError
	if errors.As(err, &ue) {
		return ue.Detail
	}
	return err.Error()
}

// Stop ends the running analysis. A stream is closed synchronously and
// the frames received so far stay in the buffer. An upload in flight runs
// to completion but its session is dropped.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.current
	if r == nil {
		return ErrNoSession
	}
	switch r.session.Status {
	case models.SessionUploading:
		c.current = nil
		c.display.UploadEnabled = true
		c.display.StopEnabled = false
		c.display.setStatus(textStopped)
		c.publishDisplayLocked()
		return nil
	case models.SessionStreaming:
		c.finishLocked(r, models.SessionStopped, "")
		if r.handle != nil {
			r.handle.Close()
		}
		return nil
	default:
		return ErrNoSession
	}
}

// Close stops any running analysis and waits for pending persistence.
func (c *Controller) Close() {
	if err := c.Stop(); err != nil && !errors.Is(err, ErrNoSession) {
		slog.Warn("stop session on close", "error", err)
	}
	c.buffer.Pause()
	c.wg.Wait()
}

func (c *Controller) Play() bool { return c.buffer.Play() }

func (c *Controller) Pause() { c.buffer.Pause() }

func (c *Controller) Len() int { return c.buffer.Len() }

func (c *Controller) View() playback.View {
	return c.buffer.View()
}

// Seek moves the cursor and returns the frame under it.
func (c *Controller) Seek(index int) (models.FrameRecord, bool) {
	return c.buffer.Seek(index)
}

func (c *Controller) CurrentFrame() models.FrameRecord {
	return c.buffer.CurrentFrame()
}

func (c *Controller) Cursor() models.Cursor {
	return c.buffer.Cursor()
}

// Session returns the current or last job session.
func (c *Controller) Session() (models.JobSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return models.JobSession{}, false
	}
	return c.current.session, true
}

func (c *Controller) Display() Display {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display
}

// LoadHistory loads a historical record into the buffer. Images come from
// the archive when it has them; otherwise the record plays metrics only and
// playback stays disabled.
func (c *Controller) LoadHistory(ctx context.Context, id string) (*models.HistoryRecord, error) {
	c.mu.Lock()
	if c.current != nil && !c.current.session.Status.Terminal() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.display.setStatus(textLoadingRecord)
	c.publishDisplayLocked()
	c.mu.Unlock()

	rec, err := c.backend.GetHistory(ctx, id)
	if err != nil {
		c.mu.Lock()
		c.display.setError(textRecordFailed(err))
		c.publishDisplayLocked()
		c.mu.Unlock()
		return nil, err
	}

	frames := make([]models.FrameRecord, 0, len(rec.AllMetrics))
	for _, fm := range rec.AllMetrics {
		frames = append(frames, models.FrameRecord{FrameNum: fm.FrameNum, Metrics: fm.Metrics})
	}
	withImages := c.attachImages(ctx, id, frames)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.current.session.Status.Terminal() {
		return nil, ErrBusy
	}
	if c.current != nil && c.current.handle != nil {
		c.current.handle.Close()
	}
	c.current = nil

	c.buffer.Pause()
	c.buffer.LoadBatch(frames)

	c.display = idleDisplay()
	c.display.RecordID = rec.ID.String()
	c.display.CanvasWidth, c.display.CanvasHeight = rec.VideoWidth, rec.VideoHeight
	c.display.SliderMax = max(len(frames)-1, 0)
	c.display.PlaybackEnabled = withImages
	c.display.setPrediction(rec.FinalPrediction)
	c.display.setStatus(textRecordLoaded(rec.Filename))
	c.publishDisplayLocked()

	return rec, nil
}

// attachImages fills frame images from the archive and reports whether any
// frame has one.
func (c *Controller) attachImages(ctx context.Context, id string, frames []models.FrameRecord) bool {
	if c.archive == nil || len(frames) == 0 {
		return false
	}
	archived, err := c.archive.LoadFrames(ctx, id)
	if err != nil {
		slog.Warn("load archived frames", "record_id", id, "error", err)
		return false
	}
	images := make(map[int][]byte, len(archived))
	for _, f := range archived {
		if f.HasImage() {
			if _, dup := images[f.FrameNum]; !dup {
				images[f.FrameNum] = f.Image
			}
		}
	}
	found := false
	for i := range frames {
		if img, ok := images[frames[i].FrameNum]; ok {
			frames[i].Image = img
			found = true
		}
	}
	return found
}

// transitionLocked moves r to status and publishes the session.
func (c *Controller) transitionLocked(r *run, status models.SessionStatus) bool {
	if !models.CanTransition(r.session.Status, status) {
		slog.Warn("ignoring session transition", "session_id", r.session.ID, "from", r.session.Status, "to", status)
		return false
	}
	r.session.Status = status
	if status.Terminal() {
		now := time.Now()
		r.session.FinishedAt = &now
		observability.Sessions.WithLabelValues(string(status)).Inc()
	}
	slog.Info("session status", "session_id", r.session.ID, "job_id", r.session.JobID, "status", status)
	c.publishSessionLocked(r)
	return true
}

// finishLocked moves r to a terminal status and updates the page. errText
// non-empty shows it in the error region.
func (c *Controller) finishLocked(r *run, status models.SessionStatus, errText string) {
	if !models.CanTransition(r.session.Status, status) {
		slog.Warn("ignoring session transition", "session_id", r.session.ID, "from", r.session.Status, "to", status)
		return
	}
	r.session.ErrorMessage = errText
	c.transitionLocked(r, status)
	c.buffer.Pause()

	c.display.UploadEnabled = true
	c.display.StopEnabled = false
	c.display.ProgressVisible = false
	c.display.PlaybackEnabled = c.buffer.Len() > 0
	switch {
	case errText != "":
		c.display.setError(errText)
	case status == models.SessionStopped:
		c.display.setStatus(textStopped)
	case status == models.SessionCompleted:
		c.display.setStatus(textCompleted)
	}
	c.publishDisplayLocked()

	if status == models.SessionCompleted {
		c.persist(r)
	}
}

// persist archives frames and mirrors the record in the background.
func (c *Controller) persist(r *run) {
	if c.archive == nil && c.recorder == nil {
		return
	}
	frames := c.buffer.Frames()
	rec := &models.HistoryRecord{
		HistorySummary: models.HistorySummary{
			ID:              models.RecordID(r.session.JobID),
			UploadTime:      r.session.StartedAt.Format(time.RFC3339),
			Filename:        r.session.Filename,
			AnalysisStatus:  string(models.SessionCompleted),
			FinalPrediction: r.session.FinalPrediction,
		},
		VideoWidth:  r.meta.Width,
		VideoHeight: r.meta.Height,
		AllMetrics:  models.FrameMetricsOf(frames),
	}
	if r.session.FinishedAt != nil {
		rec.AnalysisDurationSeconds = r.session.FinishedAt.Sub(r.session.StartedAt).Seconds()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.persistTO)
		defer cancel()

		if c.archive != nil {
			if err := c.archive.ArchiveFrames(ctx, r.session.JobID, frames); err != nil {
				slog.Error("archive frames", "job_id", r.session.JobID, "error", err)
			}
		}
		if c.recorder != nil {
			if err := c.recorder.SaveAnalysis(ctx, rec); err != nil {
				slog.Error("save analysis", "job_id", r.session.JobID, "error", err)
			}
		}
	}()
}

func (c *Controller) publishSessionLocked(r *run) {
	s := r.session
	c.publish(Event{Type: EventSession, JobID: s.JobID, Session: &s})
}

func (c *Controller) publishDisplayLocked() {
	d := c.display
	ev := Event{Type: EventDisplay, Display: &d}
	if c.current != nil {
		ev.JobID = c.current.session.JobID
	}
	c.publish(ev)
}

// render runs under the buffer lock.
func (c *Controller) render(v playback.View) {
	c.publish(Event{Type: EventRender, View: &v})
}

func (c *Controller) publish(ev Event) {
	for _, b := range c.broadcasters {
		b.Publish(ev)
	}
}

// runSink routes stream events to the run they belong to. Events for a run
// that is no longer current, or no longer streaming, are dropped.
type runSink struct {
	c   *Controller
	run *run
}

func (s *runSink) lock() bool {
	s.c.mu.Lock()
	if s.c.current != s.run || s.run.session.Status != models.SessionStreaming {
		s.c.mu.Unlock()
		return false
	}
	return true
}

func (s *runSink) OnVideoMeta(meta models.VideoMeta) {
	if !s.lock() {
		return
	}
	defer s.c.mu.Unlock()

	s.run.meta = meta
	s.c.display.CanvasWidth, s.c.display.CanvasHeight = meta.Width, meta.Height
	s.c.display.SliderMax = max(meta.TotalFrames-1, 0)
	s.c.publishDisplayLocked()
}

func (s *runSink) OnProgress(p models.Progress) {
	if !s.lock() {
		return
	}
	defer s.c.mu.Unlock()

	s.c.display.Progress = p.Percent
	s.c.display.ProgressVisible = true
	s.c.display.setStatus(textProgress(p))
	s.c.publishDisplayLocked()
}

func (s *runSink) OnFrame(f models.FrameRecord) {
	if !s.lock() {
		return
	}
	defer s.c.mu.Unlock()

	s.run.frames++
	s.c.buffer.Append(f)
	if n := s.c.buffer.Len() - 1; n > s.c.display.SliderMax {
		s.c.display.SliderMax = n
	}
}

func (s *runSink) OnBatch(r models.BatchResult) {
	if !s.lock() {
		return
	}
	defer s.c.mu.Unlock()

	s.run.session.FinalPrediction = r.FinalPrediction
	s.c.buffer.LoadBatch(r.Frames)
	s.c.display.SliderMax = max(len(r.Frames)-1, 0)
	s.c.display.setPrediction(r.FinalPrediction)
	s.c.finishLocked(s.run, models.SessionCompleted, "")
}

func (s *runSink) OnError(err *ingest.BackendError) {
	if !s.lock() {
		return
	}
	defer s.c.mu.Unlock()

	slog.Warn("analysis failed", "job_id", s.run.session.JobID, "error", err.Message)
	s.c.finishLocked(s.run, models.SessionFailed, textBackendError(err.Message))
}

func (s *runSink) OnClosed(info ingest.CloseInfo) {
	if !s.lock() {
		return
	}
	defer s.c.mu.Unlock()

	switch info.Reason {
	case ingest.CloseRemote:
		if s.run.frames > 0 {
			s.c.finishLocked(s.run, models.SessionCompleted, "")
			s.c.display.setStatus(textEnded)
			s.c.publishDisplayLocked()
		} else {
			s.c.finishLocked(s.run, models.SessionFailed, textEnded)
		}
	case ingest.CloseTransport:
		s.c.finishLocked(s.run, models.SessionFailed, textTransportError(info.Err))
	default:
		s.c.finishLocked(s.run, models.SessionFailed, textEnded)
	}
}
