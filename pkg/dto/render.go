package dto

// WSEvent is a viewer websocket message.
type WSEvent struct {
	Type    string           `json:"type"` // session, display, render
	JobID   string           `json:"job_id,omitempty"`
	Session *SessionResponse `json:"session,omitempty"`
	Display *DisplayResponse `json:"display,omitempty"`
	Frame   *FrameResponse   `json:"frame,omitempty"`
	Cursor  *CursorResponse  `json:"cursor,omitempty"`
	Series  *SeriesResponse  `json:"series,omitempty"`
}
