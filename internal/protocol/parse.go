package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/your-org/pitchview/internal/models"
)

// ErrMalformed is wrapped by every Parse error. A malformed message is
// dropped by the caller; it does not end the stream.
var ErrMalformed = errors.New("malformed stream message")

const (
	fieldError           = "error"
	fieldFinalPredict    = "final_predict"
	fieldFinalPrediction = "final_prediction"
	fieldAllFrames       = "all_frames_data"
	fieldFrameNum        = "frame_num"
	fieldImage           = "image"
	fieldMetrics         = "metrics"
	fieldVideoMeta       = "video_meta"
	fieldProgress        = "progress"
	fieldCurrentFrame    = "current_frame_num"
)

type fields map[string]json.RawMessage

// Parse classifies one stream payload. Precedence is error, terminal batch,
// incremental frame, video metadata, progress; the first matching shape wins.
func Parse(data []byte) (Message, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, malformed("decode: %v", err)
	}
	if f == nil {
		return nil, malformed("payload is not an object")
	}

	if msg, ok := f.errorMessage(); ok {
		return ErrorMsg{Message: msg}, nil
	}
	if pred, ok := f.finalPrediction(); ok {
		if raw, ok := f.get(fieldAllFrames); ok {
			return parseBatch(pred, raw)
		}
	}
	if f.has(fieldFrameNum) && (f.has(fieldImage) || f.has(fieldMetrics)) {
		return parseFrame(f)
	}
	if raw, ok := f.get(fieldVideoMeta); ok {
		return parseVideoMeta(raw)
	}
	if raw, ok := f.get(fieldProgress); ok {
		return parseProgress(raw, f)
	}
	return nil, malformed("unrecognised shape with fields [%s]", f.names())
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func (f fields) get(name string) (json.RawMessage, bool) {
	raw, ok := f[name]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func (f fields) has(name string) bool {
	_, ok := f.get(name)
	return ok
}

func (f fields) names() string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// errorMessage reports a truthy error field: a non-empty string, or any
// other value that is not null, false or zero, rendered as text.
func (f fields) errorMessage() (string, bool) {
	raw, ok := f.get(fieldError)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	trimmed := string(bytes.TrimSpace(raw))
	if trimmed == "false" {
		return "", false
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil && n == 0 {
		return "", false
	}
	return trimmed, true
}

func (f fields) finalPrediction() (string, bool) {
	for _, name := range []string{fieldFinalPredict, fieldFinalPrediction} {
		raw, ok := f.get(name)
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func parseVideoMeta(raw json.RawMessage) (Message, error) {
	var meta models.VideoMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, malformed("video_meta: %v", err)
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, malformed("video_meta: invalid size %dx%d", meta.Width, meta.Height)
	}
	if meta.TotalFrames < 0 {
		return nil, malformed("video_meta: negative total_frames %d", meta.TotalFrames)
	}
	return VideoMetaMsg{Meta: meta}, nil
}

func parseProgress(raw json.RawMessage, f fields) (Message, error) {
	var pct float64
	if err := json.Unmarshal(raw, &pct); err != nil {
		return nil, malformed("progress is not numeric: %s", raw)
	}
	p := models.Progress{Percent: pct}
	if cur, ok := f.get(fieldCurrentFrame); ok {
		n, err := decodeInt(cur)
		if err != nil {
			return nil, malformed("current_frame_num: %v", err)
		}
		p.CurrentFrameNum = n
	}
	return ProgressMsg{Progress: p}, nil
}

func parseFrame(f fields) (Message, error) {
	frame, err := decodeFrame(f, 0)
	if err != nil {
		return nil, err
	}
	if frame.FrameNum < 1 {
		return nil, malformed("frame_num %d out of range", frame.FrameNum)
	}
	return FrameMsg{Frame: frame}, nil
}

// decodeFrame decodes a single frame object. fallbackNum is used when the
// object carries no frame number (batch entries only).
func decodeFrame(f fields, fallbackNum int) (models.FrameRecord, error) {
	frame := models.FrameRecord{FrameNum: fallbackNum}
	if raw, ok := f.get(fieldFrameNum); ok {
		n, err := decodeInt(raw)
		if err != nil {
			return frame, malformed("frame_num: %v", err)
		}
		frame.FrameNum = n
	}
	if raw, ok := f.get(fieldImage); ok {
		img, err := decodeImage(raw)
		if err != nil {
			return frame, err
		}
		frame.Image = img
	}
	if raw, ok := f.get(fieldMetrics); ok {
		var m models.MetricMap
		if err := json.Unmarshal(raw, &m); err != nil {
			return frame, malformed("frame %d metrics: %v", frame.FrameNum, err)
		}
		frame.Metrics = m
	}
	if frame.Metrics == nil {
		frame.Metrics = models.MetricMap{}
	}
	return frame, nil
}

// parseBatch accepts both batch layouts: an object of parallel
// "metrics"/"images" arrays, or an array of frame objects.
func parseBatch(prediction string, raw json.RawMessage) (Message, error) {
	trimmed := bytes.TrimSpace(raw)
	var frames []models.FrameRecord
	var err error
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		frames, err = decodeFrameArray(trimmed)
	case len(trimmed) > 0 && trimmed[0] == '{':
		frames, err = decodeParallelArrays(trimmed)
	default:
		err = malformed("all_frames_data has unexpected type")
	}
	if err != nil {
		return nil, err
	}
	return BatchResultMsg{Result: models.BatchResult{
		FinalPrediction: prediction,
		Frames:          frames,
	}}, nil
}

func decodeFrameArray(raw []byte) ([]models.FrameRecord, error) {
	var items []fields
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, malformed("all_frames_data: %v", err)
	}
	frames := make([]models.FrameRecord, 0, len(items))
	for i, item := range items {
		frame, err := decodeFrame(item, i+1)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func decodeParallelArrays(raw []byte) ([]models.FrameRecord, error) {
	var payload struct {
		Metrics []fields          `json:"metrics"`
		Images  []json.RawMessage `json:"images"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, malformed("all_frames_data: %v", err)
	}

	frames := make([]models.FrameRecord, 0, len(payload.Metrics))
	for i, entry := range payload.Metrics {
		frame := models.FrameRecord{FrameNum: i + 1}
		if n, ok := entry.get(fieldFrameNum); ok {
			num, err := decodeInt(n)
			if err != nil {
				return nil, malformed("all_frames_data.metrics[%d].frame_num: %v", i, err)
			}
			frame.FrameNum = num
		}

		// Entries are either {"frame_num", "metrics": {...}} or flat
		// {"frame_num", "stride_angle", ...}.
		var m models.MetricMap
		source, nested := entry.get(fieldMetrics)
		if !nested {
			flat, err := json.Marshal(entry)
			if err != nil {
				return nil, malformed("all_frames_data.metrics[%d]: %v", i, err)
			}
			source = flat
		}
		if err := json.Unmarshal(source, &m); err != nil {
			return nil, malformed("all_frames_data.metrics[%d]: %v", i, err)
		}
		if m == nil {
			m = models.MetricMap{}
		}
		frame.Metrics = m

		if i < len(payload.Images) && !isNull(payload.Images[i]) {
			img, err := decodeImage(payload.Images[i])
			if err != nil {
				return nil, err
			}
			frame.Image = img
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func decodeInt(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("not an integer: %s", raw)
	}
	return int(f), nil
}

const dataURLMarker = ";base64,"

func decodeImage(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, malformed("image is not a string")
	}
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, dataURLMarker); i >= 0 {
			s = s[i+len(dataURLMarker):]
		}
	}
	if s == "" {
		return nil, nil
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		img, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, malformed("image: %v", err)
		}
	}
	return img, nil
}
