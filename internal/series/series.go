// Package series builds the metric time series drawn by the chart views.
//
// Every line in a Series has exactly one slot per label; a metric missing
// from a frame is a nil slot, so gaps never shift neighbouring points.
package series

import "github.com/your-org/pitchview/internal/models"

// DefaultWindow is the number of trailing frames shown while playing back.
const DefaultWindow = 150

type Series struct {
	Labels []int                           `json:"labels"`
	Lines  map[models.MetricKey][]*float64 `json:"lines"`
}

func newSeries(n int) Series {
	s := Series{
		Labels: make([]int, 0, n),
		Lines:  make(map[models.MetricKey][]*float64, len(models.AllMetrics)),
	}
	for _, k := range models.AllMetrics {
		s.Lines[k] = make([]*float64, 0, n)
	}
	return s
}

func (s *Series) push(label int, m models.MetricMap) {
	s.Labels = append(s.Labels, label)
	for _, k := range models.AllMetrics {
		var slot *float64
		if v, ok := m.Get(k); ok {
			v := v
			slot = &v
		}
		s.Lines[k] = append(s.Lines[k], slot)
	}
}

func (s Series) Len() int {
	return len(s.Labels)
}

// Window returns the series of at most n frames ending at index end
// (inclusive). An out-of-range end is clamped; n <= 0 means no limit.
func Window(frames []models.FrameRecord, end, n int) Series {
	if len(frames) == 0 || end < 0 {
		return newSeries(0)
	}
	if end >= len(frames) {
		end = len(frames) - 1
	}
	start := 0
	if n > 0 && end+1 > n {
		start = end + 1 - n
	}
	s := newSeries(end - start + 1)
	for _, f := range frames[start : end+1] {
		s.push(f.FrameNum, f.Metrics)
	}
	return s
}

// FromHistory returns the whole series of a stored record in stored order.
func FromHistory(frames []models.FrameMetrics) Series {
	s := newSeries(len(frames))
	for _, f := range frames {
		s.push(f.FrameNum, f.Metrics)
	}
	return s
}

// Comparison aligns two records on frame number 1..max(frame_num).
type Comparison struct {
	Labels []int                           `json:"labels"`
	First  map[models.MetricKey][]*float64 `json:"first"`
	Second map[models.MetricKey][]*float64 `json:"second"`
}

func Compare(a, b []models.FrameMetrics) Comparison {
	maxFrame := 0
	for _, set := range [][]models.FrameMetrics{a, b} {
		for _, f := range set {
			if f.FrameNum > maxFrame {
				maxFrame = f.FrameNum
			}
		}
	}

	labels := make([]int, maxFrame)
	for i := range labels {
		labels[i] = i + 1
	}
	return Comparison{
		Labels: labels,
		First:  alignByFrame(a, maxFrame),
		Second: alignByFrame(b, maxFrame),
	}
}

// alignByFrame places each frame's values at index frame_num-1. When a frame
// number repeats, the first occurrence wins.
func alignByFrame(frames []models.FrameMetrics, maxFrame int) map[models.MetricKey][]*float64 {
	lines := make(map[models.MetricKey][]*float64, len(models.AllMetrics))
	for _, k := range models.AllMetrics {
		lines[k] = make([]*float64, maxFrame)
	}
	seen := make(map[int]bool, len(frames))
	for _, f := range frames {
		if f.FrameNum < 1 || f.FrameNum > maxFrame || seen[f.FrameNum] {
			continue
		}
		seen[f.FrameNum] = true
		for _, k := range models.AllMetrics {
			if v, ok := f.Metrics.Get(k); ok {
				v := v
				lines[k][f.FrameNum-1] = &v
			}
		}
	}
	return lines
}

// Profile is the per-metric mean over the frames where the metric is
// present, in models.AllMetrics order. Metrics never present are 0.
func Profile(frames []models.FrameMetrics) []float32 {
	out := make([]float32, len(models.AllMetrics))
	for i, k := range models.AllMetrics {
		var sum float64
		var n int
		for _, f := range frames {
			if v, ok := f.Metrics.Get(k); ok {
				sum += v
				n++
			}
		}
		if n > 0 {
			out[i] = float32(sum / float64(n))
		}
	}
	return out
}
