package models

// FrameRecord is one decoded frame of an analysis. Image holds JPEG bytes
// and is nil when the backend sent no image (e.g. historical records).
type FrameRecord struct {
	FrameNum int       `json:"frame_num"`
	Image    []byte    `json:"-"`
	Metrics  MetricMap `json:"metrics"`
}

// EmptyFrame is returned when a buffer has no frames.
var EmptyFrame = FrameRecord{}

func (f FrameRecord) IsEmpty() bool {
	return f.FrameNum == 0 && f.Image == nil && f.Metrics == nil
}

func (f FrameRecord) HasImage() bool {
	return len(f.Image) > 0
}

type VideoMeta struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	TotalFrames int `json:"total_frames"`
}

type Progress struct {
	Percent         float64 `json:"progress"`
	CurrentFrameNum int     `json:"current_frame_num"`
}

type BatchResult struct {
	FinalPrediction string
	Frames          []FrameRecord
}

// Cursor is the playback position within a frame buffer.
type Cursor struct {
	Position int  `json:"position"`
	Playing  bool `json:"playing"`
}

type PredictionClass string

const (
	PredictionGood    PredictionClass = "good"
	PredictionBad     PredictionClass = "bad"
	PredictionUnknown PredictionClass = "unknown"
)

// ClassifyPrediction maps the backend's final prediction text to a display class.
func ClassifyPrediction(p string) PredictionClass {
	switch p {
	case "好球":
		return PredictionGood
	case "壞球":
		return PredictionBad
	default:
		return PredictionUnknown
	}
}
