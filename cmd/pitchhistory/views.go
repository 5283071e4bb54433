package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/pitchview/internal/backend"
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/series"
	"github.com/your-org/pitchview/internal/storage"
)

const gap = "-"

func summaryHeaders() []string {
	return []string{"ID", "Uploaded", "Filename", "Status", "Prediction"}
}

func buildSummaryRows(records []models.HistorySummary) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID.String(),
			formatUploadTime(r.UploadTime),
			r.Filename,
			r.AnalysisStatus,
			orGap(r.FinalPrediction),
		})
	}
	return rows
}

func buildSimilarRows(matches []storage.SimilarMatch) [][]string {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			m.ID.String(),
			m.Filename,
			orGap(m.FinalPrediction),
			strconv.FormatFloat(m.Distance, 'f', 3, 64),
		})
	}
	return rows
}

func metricHeaders(first string, unit models.MetricUnit) []string {
	headers := make([]string, 0, len(models.AllMetrics)+1)
	headers = append(headers, first)
	for _, k := range models.AllMetrics {
		headers = append(headers, k.Label(unit))
	}
	return headers
}

// buildFrameRows lists every stored frame; missing metrics print as a gap.
func buildFrameRows(s series.Series) [][]string {
	rows := make([][]string, 0, s.Len())
	for i, label := range s.Labels {
		row := make([]string, 0, len(models.AllMetrics)+1)
		row = append(row, strconv.Itoa(label))
		for _, k := range models.AllMetrics {
			row = append(row, formatValue(s.Lines[k][i]))
		}
		rows = append(rows, row)
	}
	return rows
}

// buildCompareRows summarises each metric of two aligned records: mean and
// number of frames carrying a value.
func buildCompareRows(cmp series.Comparison, unit models.MetricUnit) [][]string {
	rows := make([][]string, 0, len(models.AllMetrics))
	for _, k := range models.AllMetrics {
		meanA, nA := lineMean(cmp.First[k])
		meanB, nB := lineMean(cmp.Second[k])
		delta := gap
		if nA > 0 && nB > 0 {
			delta = strconv.FormatFloat(meanB-meanA, 'f', 2, 64)
		}
		rows = append(rows, []string{
			k.Label(unit),
			formatMean(meanA, nA),
			strconv.Itoa(nA),
			formatMean(meanB, nB),
			strconv.Itoa(nB),
			delta,
		})
	}
	return rows
}

func lineMean(line []*float64) (float64, int) {
	var sum float64
	var n int
	for _, v := range line {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func formatMean(mean float64, n int) string {
	if n == 0 {
		return gap
	}
	return strconv.FormatFloat(mean, 'f', 2, 64)
}

func formatValue(v *float64) string {
	if v == nil {
		return gap
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatUploadTime(s string) string {
	t, ok := backend.ParseUploadTime(s)
	if !ok {
		return orGap(s)
	}
	return t.Format(time.DateTime)
}

func orGap(s string) string {
	if strings.TrimSpace(s) == "" {
		return gap
	}
	return s
}

func formatRecordHeader(rec *models.HistoryRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Record %s: %s\n", rec.ID, rec.Filename)
	fmt.Fprintf(&b, "  Uploaded:   %s\n", formatUploadTime(rec.UploadTime))
	fmt.Fprintf(&b, "  Status:     %s\n", orGap(rec.AnalysisStatus))
	fmt.Fprintf(&b, "  Prediction: %s\n", orGap(rec.FinalPrediction))
	fmt.Fprintf(&b, "  Video:      %dx%d, analysed in %.1fs\n", rec.VideoWidth, rec.VideoHeight, rec.AnalysisDurationSeconds)
	fmt.Fprintf(&b, "  Frames:     %d\n", len(rec.AllMetrics))
	return b.String()
}

func formatEvent(ev models.AnalysisEvent) string {
	line := fmt.Sprintf("%s  job=%s  %-9s  %s", ev.Timestamp.Local().Format(time.DateTime), orGap(ev.JobID), ev.Status, ev.Filename)
	if ev.FinalPrediction != "" {
		line += "  prediction=" + ev.FinalPrediction
	}
	if ev.ErrorMessage != "" {
		line += "  error=" + strconv.Quote(ev.ErrorMessage)
	}
	return line
}
