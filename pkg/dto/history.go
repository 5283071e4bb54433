package dto

type HistorySummaryResponse struct {
	ID              string `json:"id"`
	UploadTime      string `json:"upload_time"`
	Filename        string `json:"filename"`
	AnalysisStatus  string `json:"analysis_status"`
	FinalPrediction string `json:"final_prediction"`
}

type HistoryListResponse struct {
	Records []HistorySummaryResponse `json:"records"`
	Total   int                      `json:"total"`
	Source  string                   `json:"source"` // backend, mirror
}

// SeriesResponse holds one line per metric aligned with Labels. Nil
// entries are gaps.
type SeriesResponse struct {
	Labels []int                 `json:"labels"`
	Lines  map[string][]*float64 `json:"lines"`
	Legend map[string]string     `json:"legend,omitempty"`
}

type HistoryRecordResponse struct {
	HistorySummaryResponse
	VideoWidth              int            `json:"video_width"`
	VideoHeight             int            `json:"video_height"`
	AnalysisDurationSeconds float64        `json:"analysis_duration_seconds"`
	Frames                  int            `json:"frames"`
	Series                  SeriesResponse `json:"series"`
}

type CompareResponse struct {
	First  string                `json:"first"`
	Second string                `json:"second,omitempty"`
	Labels []int                 `json:"labels"`
	A      map[string][]*float64 `json:"a"`
	B      map[string][]*float64 `json:"b"`
}

type SimilarResponse struct {
	ID      string                 `json:"id"`
	Matches []SimilarMatchResponse `json:"matches"`
}

type SimilarMatchResponse struct {
	HistorySummaryResponse
	Distance float64 `json:"distance"`
}
