package session

import (
	"fmt"
	"strconv"

	"github.com/your-org/pitchview/internal/models"
)

// Display is the viewer-facing page state. Status and Error are mutually
// exclusive: setting one clears the other.
type Display struct {
	Status          string                 `json:"status"`
	Error           string                 `json:"error"`
	Progress        float64                `json:"progress"`
	ProgressVisible bool                   `json:"progress_visible"`
	Prediction      string                 `json:"prediction"`
	PredictionClass models.PredictionClass `json:"prediction_class"`
	CanvasWidth     int                    `json:"canvas_width"`
	CanvasHeight    int                    `json:"canvas_height"`
	SliderMax       int                    `json:"slider_max"`
	UploadEnabled   bool                   `json:"upload_enabled"`
	StopEnabled     bool                   `json:"stop_enabled"`
	PlaybackEnabled bool                   `json:"playback_enabled"`
	RecordID        string                 `json:"record_id,omitempty"`
}

func idleDisplay() Display {
	return Display{UploadEnabled: true, PredictionClass: models.PredictionUnknown}
}

func (d *Display) setStatus(s string) {
	d.Status = s
	d.Error = ""
}

func (d *Display) setError(e string) {
	d.Error = e
	d.Status = ""
}

func (d *Display) setPrediction(p string) {
	d.Prediction = p
	d.PredictionClass = models.ClassifyPrediction(p)
}

const (
	textUploading      = "影片上傳中..."
	textCompleted      = "影片分析完成。"
	textStopped        = "分析已手動停止。"
	textEnded          = "分析已結束或連線斷開。"
	textAwaitingResult = "等待影片分析完成以獲取模型預測結果..."
	textLoadingRecord  = "正在載入選定的紀錄資料..."
)

func textStreaming(filename string) string {
	return fmt.Sprintf("影片上傳成功，開始分析... (檔案: %s)", filename)
}

func textProgress(p models.Progress) string {
	return fmt.Sprintf("分析進度: %s%% (幀數: %d)", strconv.FormatFloat(p.Percent, 'f', -1, 64), p.CurrentFrameNum)
}

func textUploadFailed(detail string) string {
	return "上傳或分析失敗: " + detail
}

func textBackendError(msg string) string {
	return "分析錯誤: " + msg
}

func textTransportError(err error) string {
	return "WebSocket 錯誤: " + err.Error()
}

func textRecordLoaded(filename string) string {
	return "載入歷史記錄完成: " + filename
}

func textRecordFailed(err error) string {
	return "載入詳細紀錄失敗: " + err.Error()
}
