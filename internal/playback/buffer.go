// Package playback holds the decoded frames of the current analysis and
// drives VCR-style playback over them.
//
// Frames arrive either one at a time or as one terminal batch; the buffer
// presents both the same way. The ingestion path and the playback ticker
// both mutate the buffer, so every operation runs to completion under a
// single lock, including the Renderer call it triggers.
package playback

import (
	"sync"
	"time"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/series"
)

// DefaultInterval gives nominal 30 steps per second.
const DefaultInterval = 33 * time.Millisecond

// View is what a renderer draws after the cursor moves.
type View struct {
	Index  int                `json:"index"`
	Total  int                `json:"total"`
	Frame  models.FrameRecord `json:"frame"`
	Cursor models.Cursor      `json:"cursor"`
	Series series.Series      `json:"series"`
}

// Renderer is called with the buffer lock held and must not call back into
// the Buffer.
type Renderer interface {
	Render(View)
}

type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

type Options struct {
	Interval time.Duration
	Window   int
	Clock    Clock
	Renderer Renderer
}

type Buffer struct {
	interval time.Duration
	window   int
	clock    Clock
	renderer Renderer

	mu     sync.Mutex
	frames []models.FrameRecord
	cursor models.Cursor
	stop   chan struct{} // non-nil while playing
	// follow is set until the user takes the cursor with Seek or Play.
	follow bool
}

func NewBuffer(opts Options) *Buffer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Window <= 0 {
		opts.Window = series.DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Renderer == nil {
		opts.Renderer = RendererFunc(func(View) {})
	}
	return &Buffer{
		interval: opts.Interval,
		window:   opts.Window,
		clock:    opts.Clock,
		renderer: opts.Renderer,
		follow:   true,
	}
}

// Append adds a frame at the end in arrival order. Duplicate or
// out-of-order frame numbers are kept as they are. The cursor follows the
// newest frame only until the first Seek or Play after a Reset.
func (b *Buffer) Append(f models.FrameRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = append(b.frames, f)
	if b.follow && !b.cursor.Playing {
		b.cursor.Position = len(b.frames) - 1
		b.renderLocked()
	}
}

// LoadBatch replaces the whole sequence and rewinds the cursor to 0.
func (b *Buffer) LoadBatch(frames []models.FrameRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frames = append(make([]models.FrameRecord, 0, len(frames)), frames...)
	b.cursor.Position = 0
	b.follow = false
	if len(b.frames) == 0 {
		b.pauseLocked()
		return
	}
	b.renderLocked()
}

// Seek moves the cursor to index, clamped to the buffer, and returns the
// frame it landed on. It stops autoplay and ends following of new frames.
// Seeking an empty buffer does nothing and reports false.
func (b *Buffer) Seek(index int) (models.FrameRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return models.EmptyFrame, false
	}
	b.pauseLocked()
	b.follow = false
	switch {
	case index < 0:
		index = 0
	case index >= len(b.frames):
		index = len(b.frames) - 1
	}
	b.cursor.Position = index
	b.renderLocked()
	return b.frames[index], true
}

// Play starts advancing the cursor one frame per interval, looping back to
// the first frame after the last. It reports false when the buffer is empty
// or already playing.
func (b *Buffer) Play() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 || b.stop != nil {
		return false
	}
	stop := make(chan struct{})
	b.stop = stop
	b.cursor.Playing = true
	b.follow = false

	ticker := b.clock.NewTicker(b.interval)
	go b.run(ticker, stop)
	return true
}

func (b *Buffer) run(ticker Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			b.tick(stop)
		}
	}
}

func (b *Buffer) tick(stop chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A pause or restart that happened while this tick was waiting for the
	// lock wins.
	if b.stop != stop || len(b.frames) == 0 {
		return
	}
	b.cursor.Position++
	if b.cursor.Position >= len(b.frames) {
		b.cursor.Position = 0
	}
	b.renderLocked()
}

// Pause stops playback. Safe to call when not playing.
func (b *Buffer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pauseLocked()
}

func (b *Buffer) pauseLocked() {
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
	b.cursor.Playing = false
}

// Reset drops all frames and stops playback.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pauseLocked()
	b.frames = nil
	b.cursor.Position = 0
	b.follow = true
}

// CurrentFrame returns the frame under the cursor, or models.EmptyFrame.
func (b *Buffer) CurrentFrame() models.FrameRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return models.EmptyFrame
	}
	return b.frames[b.cursor.Position]
}

// Frames returns a copy of the sequence in arrival order.
func (b *Buffer) Frames() []models.FrameRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.FrameRecord(nil), b.frames...)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

func (b *Buffer) Cursor() models.Cursor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// View returns the current view without moving the cursor.
func (b *Buffer) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

func (b *Buffer) viewLocked() View {
	v := View{
		Index:  b.cursor.Position,
		Total:  len(b.frames),
		Frame:  models.EmptyFrame,
		Cursor: b.cursor,
	}
	if len(b.frames) > 0 {
		v.Frame = b.frames[b.cursor.Position]
	}
	v.Series = series.Window(b.frames, b.cursor.Position, b.window)
	return v
}

func (b *Buffer) renderLocked() {
	b.renderer.Render(b.viewLocked())
}
