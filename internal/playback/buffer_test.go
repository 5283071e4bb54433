package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/your-org/pitchview/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { close(t.stopped) }

type manualClock struct {
	created chan *manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{created: make(chan *manualTicker, 8)}
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time, 1), stopped: make(chan struct{})}
	c.created <- t
	return t
}

func (c *manualClock) next(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case tk := <-c.created:
		return tk
	case <-time.After(time.Second):
		t.Fatal("no ticker created")
		return nil
	}
}

type recorder struct {
	views chan View
}

func newRecorder() *recorder {
	return &recorder{views: make(chan View, 512)}
}

func (r *recorder) Render(v View) { r.views <- v }

func (r *recorder) next(t *testing.T) View {
	t.Helper()
	select {
	case v := <-r.views:
		return v
	case <-time.After(time.Second):
		t.Fatal("no render")
		return View{}
	}
}

func (r *recorder) drain() {
	for {
		select {
		case <-r.views:
		default:
			return
		}
	}
}

func (r *recorder) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case v := <-r.views:
		t.Fatalf("unexpected render at index %d", v.Index)
	case <-time.After(50 * time.Millisecond):
	}
}

func makeFrames(nums ...int) []models.FrameRecord {
	out := make([]models.FrameRecord, 0, len(nums))
	for _, n := range nums {
		out = append(out, models.FrameRecord{
			FrameNum: n,
			Metrics:  models.MetricMap{models.MetricStrideAngle: float64(n)},
		})
	}
	return out
}

func newTestBuffer() (*Buffer, *manualClock, *recorder) {
	clock := newManualClock()
	rec := newRecorder()
	b := NewBuffer(Options{Clock: clock, Renderer: rec})
	return b, clock, rec
}

func TestAppend_PreservesArrivalOrder(t *testing.T) {
	b, _, rec := newTestBuffer()

	nums := []int{1, 2, 2, 5, 4, 9}
	for _, f := range makeFrames(nums...) {
		b.Append(f)
	}

	require.Equal(t, len(nums), b.Len())
	got := make([]int, 0, len(nums))
	for _, f := range b.Frames() {
		got = append(got, f.FrameNum)
	}
	assert.Equal(t, nums, got)

	// paused: every append renders and the cursor follows the tail
	for i := range nums {
		v := rec.next(t)
		assert.Equal(t, i, v.Index)
		assert.Equal(t, nums[i], v.Frame.FrameNum)
	}
	assert.Equal(t, len(nums)-1, b.Cursor().Position)
}

func TestSeek_Clamps(t *testing.T) {
	b, _, rec := newTestBuffer()
	b.LoadBatch(makeFrames(1, 2, 3, 4))
	rec.drain()

	tests := []struct {
		index int
		want  int
	}{
		{-5, 0},
		{2, 2},
		{4, 3},
		{1000, 3},
	}
	for _, tt := range tests {
		f, ok := b.Seek(tt.index)
		require.True(t, ok)
		assert.Equal(t, tt.want+1, f.FrameNum, "seek(%d)", tt.index)
		assert.Equal(t, tt.want, b.Cursor().Position, "seek(%d)", tt.index)
		assert.Equal(t, tt.want, rec.next(t).Index)
	}
}

func TestSeek_EmptyIsNoop(t *testing.T) {
	b, clock, rec := newTestBuffer()

	f, ok := b.Seek(3)
	assert.False(t, ok)
	assert.True(t, f.IsEmpty())
	assert.False(t, b.Cursor().Playing)
	assert.True(t, b.CurrentFrame().IsEmpty())
	assert.Empty(t, clock.created)
	rec.assertQuiet(t)
}

func TestPlay_WrapsToStart(t *testing.T) {
	b, clock, rec := newTestBuffer()
	b.LoadBatch(makeFrames(10, 11, 12))
	assert.Equal(t, 0, rec.next(t).Index)

	require.True(t, b.Play())
	defer b.Pause()
	assert.True(t, b.Cursor().Playing)
	tk := clock.next(t)

	want := []int{1, 2, 0, 1, 2, 0, 1}
	for _, idx := range want {
		tk.ch <- time.Now()
		v := rec.next(t)
		assert.Equal(t, idx, v.Index)
		assert.True(t, v.Cursor.Playing)
	}
	assert.Equal(t, 11, b.CurrentFrame().FrameNum)
}

func TestPlay_Guards(t *testing.T) {
	b, clock, _ := newTestBuffer()

	assert.False(t, b.Play(), "empty buffer must not start the timer")
	assert.Empty(t, clock.created)

	b.Append(makeFrames(1)[0])
	require.True(t, b.Play())
	assert.False(t, b.Play(), "second play while playing")
	clock.next(t)
	assert.Empty(t, clock.created)

	b.Pause()
	b.Pause()
	assert.False(t, b.Cursor().Playing)
}

func TestPause_HaltsTimer(t *testing.T) {
	b, clock, rec := newTestBuffer()
	b.LoadBatch(makeFrames(1, 2, 3))
	rec.drain()

	require.True(t, b.Play())
	tk := clock.next(t)
	tk.ch <- time.Now()
	assert.Equal(t, 1, rec.next(t).Index)

	b.Pause()
	select {
	case <-tk.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped")
	}
	select {
	case tk.ch <- time.Now():
	default:
	}
	rec.assertQuiet(t)
	assert.Equal(t, 1, b.Cursor().Position)
}

func TestSeek_StopsAutoplay(t *testing.T) {
	b, clock, rec := newTestBuffer()
	b.LoadBatch(makeFrames(1, 2, 3, 4, 5))
	rec.drain()

	require.True(t, b.Play())
	tk := clock.next(t)

	_, ok := b.Seek(3)
	require.True(t, ok)
	assert.Equal(t, 3, rec.next(t).Index)
	assert.False(t, b.Cursor().Playing)

	<-tk.stopped
	rec.assertQuiet(t)
}

func TestAppend_WhilePlayingKeepsCursor(t *testing.T) {
	b, clock, rec := newTestBuffer()
	b.LoadBatch(makeFrames(1, 2))
	rec.drain()

	require.True(t, b.Play())
	defer b.Pause()
	tk := clock.next(t)

	b.Append(makeFrames(3)[0])
	rec.assertQuiet(t)
	assert.Equal(t, 0, b.Cursor().Position)

	tk.ch <- time.Now()
	assert.Equal(t, 1, rec.next(t).Index)
	tk.ch <- time.Now()
	v := rec.next(t)
	assert.Equal(t, 2, v.Index)
	assert.Equal(t, 3, v.Frame.FrameNum)
	assert.Equal(t, 3, v.Total)
}

func TestAppend_SeekEndsFollowing(t *testing.T) {
	b, _, rec := newTestBuffer()
	for _, f := range makeFrames(1, 2, 3, 4, 5) {
		b.Append(f)
	}
	rec.drain()

	f, ok := b.Seek(1)
	require.True(t, ok)
	assert.Equal(t, 2, f.FrameNum)
	assert.Equal(t, 1, rec.next(t).Index)

	b.Append(makeFrames(6)[0])
	b.Append(makeFrames(7)[0])
	rec.assertQuiet(t)
	assert.Equal(t, 1, b.Cursor().Position)
	assert.Equal(t, 2, b.CurrentFrame().FrameNum)
	assert.Equal(t, 7, b.Len())

	// a new run follows again
	b.Reset()
	b.Append(makeFrames(1)[0])
	b.Append(makeFrames(2)[0])
	assert.Equal(t, 1, b.Cursor().Position)
}

func TestAppend_PlayThenPauseEndsFollowing(t *testing.T) {
	b, clock, rec := newTestBuffer()
	for _, f := range makeFrames(1, 2, 3) {
		b.Append(f)
	}
	rec.drain()

	require.True(t, b.Play())
	tk := clock.next(t)
	tk.ch <- time.Now()
	assert.Equal(t, 0, rec.next(t).Index)
	b.Pause()
	<-tk.stopped

	b.Append(makeFrames(4)[0])
	rec.assertQuiet(t)
	assert.Equal(t, 0, b.Cursor().Position)
}

func TestLoadBatch_ResetsCursor(t *testing.T) {
	b, _, rec := newTestBuffer()
	for _, f := range makeFrames(1, 2, 3) {
		b.Append(f)
	}
	rec.drain()
	require.Equal(t, 2, b.Cursor().Position)

	b.LoadBatch(makeFrames(7, 8, 9, 10))

	assert.Equal(t, 0, b.Cursor().Position)
	assert.Equal(t, 4, b.Len())
	v := rec.next(t)
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, 7, v.Frame.FrameNum)
	assert.Equal(t, []int{7}, v.Series.Labels)
}

func TestRender_SeriesWindowEndsAtCursor(t *testing.T) {
	clock := newManualClock()
	rec := newRecorder()
	b := NewBuffer(Options{Clock: clock, Renderer: rec, Window: 3})

	b.LoadBatch(makeFrames(1, 2, 3, 4, 5, 6))
	rec.drain()

	b.Seek(4)
	v := rec.next(t)
	assert.Equal(t, []int{3, 4, 5}, v.Series.Labels)
	require.Len(t, v.Series.Lines[models.MetricStrideAngle], 3)
	assert.Equal(t, 5.0, *v.Series.Lines[models.MetricStrideAngle][2])

	b.Seek(0)
	assert.Equal(t, []int{1}, rec.next(t).Series.Labels)
}

func TestReset(t *testing.T) {
	b, clock, _ := newTestBuffer()
	b.LoadBatch(makeFrames(1, 2))
	require.True(t, b.Play())
	tk := clock.next(t)

	b.Reset()

	<-tk.stopped
	assert.Zero(t, b.Len())
	assert.Equal(t, models.Cursor{}, b.Cursor())
	assert.True(t, b.CurrentFrame().IsEmpty())
}
