// Package backend is the HTTP client for the remote analysis service:
// video upload, history listing and history detail.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/your-org/pitchview/internal/models"
)

const (
	uploadPath  = "/upload_video/"
	historyPath = "/api/history"
	streamPath  = "/ws/analyze_video"

	uploadFailedDetail = "影片上傳失敗"
)

type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	uploadClient *http.Client
}

type Option func(*Client)

// WithUploadTimeout bounds a whole upload, body included. Zero, the
// default, leaves uploads limited only by their context.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.uploadClient.Timeout = d
	}
}

// NewClient builds a client whose history requests are bounded by timeout.
// Uploads stream the video and are not bound by it.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend url %q has no host", baseURL)
	}
	c := &Client{
		baseURL:      u,
		httpClient:   &http.Client{Timeout: timeout},
		uploadClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UploadResult is the backend's answer to a successful upload. JobID is
// the record id that scopes the analysis stream.
type UploadResult struct {
	Filename string          `json:"filename"`
	JobID    models.RecordID `json:"record_id"`
}

// Upload posts the video as multipart field "file". The body is streamed,
// not buffered.
func (c *Client) Upload(ctx context.Context, filename string, video io.Reader) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", path.Base(filename))
		if err == nil {
			_, err = io.Copy(part, video)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(uploadPath), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	// Unblocks the writer goroutine if the backend answers before reading
	// the whole body.
	defer pr.Close()
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newUploadError(resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if result.Filename == "" {
		return nil, fmt.Errorf("upload response has no filename")
	}
	return &result, nil
}

// ListHistory returns all history summaries, newest upload first.
func (c *Client) ListHistory(ctx context.Context) ([]models.HistorySummary, error) {
	var records []models.HistorySummary
	if err := c.getJSON(ctx, historyPath, &records); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	SortNewestFirst(records)
	return records, nil
}

func (c *Client) GetHistory(ctx context.Context, id string) (*models.HistoryRecord, error) {
	var record models.HistoryRecord
	if err := c.getJSON(ctx, historyPath+"/"+url.PathEscape(id), &record); err != nil {
		return nil, fmt.Errorf("get history %s: %w", id, err)
	}
	return &record, nil
}

// StreamURL returns the websocket address of a job's analysis stream. An
// empty jobID yields the older path without the job segment.
func (c *Client) StreamURL(videoRef, jobID string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	raw, escaped := u.Path+streamPath+"/"+videoRef, u.EscapedPath()+streamPath+"/"+url.PathEscape(videoRef)
	if jobID != "" {
		raw += "/" + jobID
		escaped += "/" + url.PathEscape(jobID)
	}
	u.Path, u.RawPath = raw, escaped
	return u.String()
}

// Ping checks that the backend answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(historyPath), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) endpoint(p string) string {
	return c.baseURL.String() + p
}

func (c *Client) getJSON(ctx context.Context, p string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(p), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var uploadTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseUploadTime understands the timestamp forms the backend has used.
func ParseUploadTime(s string) (time.Time, bool) {
	for _, layout := range uploadTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortNewestFirst orders summaries by upload time, descending. Records with
// unparseable times keep their relative order at the end.
func SortNewestFirst(records []models.HistorySummary) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, okI := ParseUploadTime(records[i].UploadTime)
		tj, okJ := ParseUploadTime(records[j].UploadTime)
		switch {
		case okI && okJ:
			return ti.After(tj)
		default:
			return okI && !okJ
		}
	})
}
