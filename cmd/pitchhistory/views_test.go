package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/series"
	"github.com/your-org/pitchview/internal/storage"
)

func TestBuildSummaryRows(t *testing.T) {
	rows := buildSummaryRows([]models.HistorySummary{
		{ID: "12", UploadTime: "2025-06-15T08:30:00Z", Filename: "a.mp4", AnalysisStatus: "completed", FinalPrediction: "好球"},
		{ID: "11", UploadTime: "yesterday", Filename: "b.mp4", AnalysisStatus: "processing"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"12", "2025-06-15 08:30:00", "a.mp4", "completed", "好球"}, rows[0])
	assert.Equal(t, []string{"11", "yesterday", "b.mp4", "processing", "-"}, rows[1])
}

func TestBuildFrameRows_GapsStayInPlace(t *testing.T) {
	s := series.FromHistory([]models.FrameMetrics{
		{FrameNum: 1, Metrics: models.MetricMap{models.MetricStrideAngle: 40.5}},
		{FrameNum: 2, Metrics: models.MetricMap{models.MetricShoulderToHip: 3}},
	})
	rows := buildFrameRows(s)
	require.Len(t, rows, 2)
	require.Len(t, rows[0], len(models.AllMetrics)+1)
	assert.Equal(t, "1", rows[0][0])
	assert.Equal(t, "40.50", rows[0][1])
	assert.Equal(t, "-", rows[0][len(models.AllMetrics)])
	assert.Equal(t, "-", rows[1][1])
	assert.Equal(t, "3.00", rows[1][len(models.AllMetrics)])
}

func TestBuildCompareRows(t *testing.T) {
	a := []models.FrameMetrics{
		{FrameNum: 1, Metrics: models.MetricMap{models.MetricHipRotation: 10}},
		{FrameNum: 2, Metrics: models.MetricMap{models.MetricHipRotation: 20}},
	}
	b := []models.FrameMetrics{
		{FrameNum: 3, Metrics: models.MetricMap{models.MetricHipRotation: 30}},
	}
	rows := buildCompareRows(series.Compare(a, b), models.UnitMeters)
	require.Len(t, rows, len(models.AllMetrics))

	var hip, stride []string
	for _, r := range rows {
		switch r[0] {
		case models.MetricHipRotation.Label(models.UnitMeters):
			hip = r
		case models.MetricStrideAngle.Label(models.UnitMeters):
			stride = r
		}
	}
	assert.Equal(t, []string{"髖部旋轉 (度)", "15.00", "2", "30.00", "1", "15.00"}, hip)
	assert.Equal(t, []string{"步幅角度 (度)", "-", "0", "-", "0", "-"}, stride)
}

func TestBuildSimilarRows(t *testing.T) {
	rows := buildSimilarRows([]storage.SimilarMatch{
		{HistorySummary: models.HistorySummary{ID: "3", Filename: "c.mp4"}, Distance: 0.12345},
	})
	assert.Equal(t, [][]string{{"3", "c.mp4", "-", "0.123"}}, rows)
}

func TestMetricHeaders_UseLengthUnit(t *testing.T) {
	headers := metricHeaders("Frame", models.UnitMeters)
	assert.Equal(t, "Frame", headers[0])
	assert.Contains(t, headers, "釋放距離 (m)")
	assert.Contains(t, headers, "手臂對稱性 (%)")
}

func TestFormatEvent(t *testing.T) {
	ev := models.AnalysisEvent{
		JobID:           "42",
		Filename:        "pitch.mp4",
		Status:          models.SessionCompleted,
		FinalPrediction: "壞球",
		Timestamp:       time.Date(2025, 6, 15, 8, 0, 0, 0, time.Local),
	}
	line := formatEvent(ev)
	assert.True(t, strings.HasPrefix(line, "2025-06-15 08:00:00  job=42  completed"), line)
	assert.Contains(t, line, "prediction=壞球")
	assert.NotContains(t, line, "error=")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "Distance"}, [][]string{{"3", "0.5"}, {"4"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "0.5")
	assert.Equal(t, "", renderTable(nil, nil, nil))
}

func TestRootCommand_Help(t *testing.T) {
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	for _, sub := range []string{"list", "show", "compare", "similar", "watch"} {
		assert.Contains(t, buf.String(), sub)
	}
}
