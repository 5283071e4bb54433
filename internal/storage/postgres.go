package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/pitchview/internal/config"
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/series"
)

// PostgresStore mirrors completed analyses. Each record carries a profile
// vector of per-metric means used to find similar pitches.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS analyses (
	record_id        TEXT PRIMARY KEY,
	filename         TEXT NOT NULL,
	upload_time      TEXT NOT NULL,
	analysis_status  TEXT NOT NULL,
	final_prediction TEXT NOT NULL DEFAULT '',
	video_width      INT NOT NULL DEFAULT 0,
	video_height     INT NOT NULL DEFAULT 0,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	profile          vector(10) NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_frames (
	record_id TEXT NOT NULL REFERENCES analyses(record_id) ON DELETE CASCADE,
	seq       INT NOT NULL,
	frame_num INT NOT NULL,
	metrics   JSONB NOT NULL,
	PRIMARY KEY (record_id, seq)
);`

// EnsureSchema creates the mirror tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveAnalysis inserts or replaces a record and its frame metrics.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, rec *models.HistoryRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	profile := pgvector.NewVector(series.Profile(rec.AllMetrics))
	_, err = tx.Exec(ctx,
		`INSERT INTO analyses (record_id, filename, upload_time, analysis_status, final_prediction,
		                       video_width, video_height, duration_seconds, profile)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (record_id) DO UPDATE SET
		   filename = EXCLUDED.filename, upload_time = EXCLUDED.upload_time,
		   analysis_status = EXCLUDED.analysis_status, final_prediction = EXCLUDED.final_prediction,
		   video_width = EXCLUDED.video_width, video_height = EXCLUDED.video_height,
		   duration_seconds = EXCLUDED.duration_seconds, profile = EXCLUDED.profile`,
		rec.ID.String(), rec.Filename, rec.UploadTime, rec.AnalysisStatus, rec.FinalPrediction,
		rec.VideoWidth, rec.VideoHeight, rec.AnalysisDurationSeconds, profile)
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", rec.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM analysis_frames WHERE record_id = $1`, rec.ID.String()); err != nil {
		return fmt.Errorf("clear frames %s: %w", rec.ID, err)
	}

	rows, err := frameRows(rec)
	if err != nil {
		return err
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"analysis_frames"},
		[]string{"record_id", "seq", "frame_num", "metrics"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy frames %s: %w", rec.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit analysis %s: %w", rec.ID, err)
	}
	return nil
}

func frameRows(rec *models.HistoryRecord) ([][]any, error) {
	rows := make([][]any, 0, len(rec.AllMetrics))
	for seq, f := range rec.AllMetrics {
		metrics := f.Metrics
		if metrics == nil {
			metrics = models.MetricMap{}
		}
		data, err := json.Marshal(metrics)
		if err != nil {
			return nil, fmt.Errorf("encode frame %d metrics: %w", f.FrameNum, err)
		}
		rows = append(rows, []any{rec.ID.String(), seq, f.FrameNum, data})
	}
	return rows, nil
}

// ListRecords returns mirrored summaries, most recently saved first.
func (s *PostgresStore) ListRecords(ctx context.Context, limit int) ([]models.HistorySummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT record_id, upload_time, filename, analysis_status, final_prediction
		 FROM analyses ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []models.HistorySummary
	for rows.Next() {
		var r models.HistorySummary
		var id string
		if err := rows.Scan(&id, &r.UploadTime, &r.Filename, &r.AnalysisStatus, &r.FinalPrediction); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.ID = models.RecordID(id)
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRecord returns a mirrored record with its frame metrics, or nil when
// the record is unknown.
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*models.HistoryRecord, error) {
	rec := &models.HistoryRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT upload_time, filename, analysis_status, final_prediction,
		        video_width, video_height, duration_seconds
		 FROM analyses WHERE record_id = $1`, id,
	).Scan(&rec.UploadTime, &rec.Filename, &rec.AnalysisStatus, &rec.FinalPrediction,
		&rec.VideoWidth, &rec.VideoHeight, &rec.AnalysisDurationSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	rec.ID = models.RecordID(id)

	rows, err := s.pool.Query(ctx,
		`SELECT frame_num, metrics FROM analysis_frames WHERE record_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get frames %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.FrameMetrics
		var data []byte
		if err := rows.Scan(&f.FrameNum, &data); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		if err := json.Unmarshal(data, &f.Metrics); err != nil {
			return nil, fmt.Errorf("decode frame %d metrics: %w", f.FrameNum, err)
		}
		rec.AllMetrics = append(rec.AllMetrics, f)
	}
	return rec, rows.Err()
}

type SimilarMatch struct {
	models.HistorySummary
	Distance float64 `json:"distance"`
}

// SimilarRecords finds the records whose metric profile is closest to id's
// by Euclidean distance.
func (s *PostgresStore) SimilarRecords(ctx context.Context, id string, limit int) ([]SimilarMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT a.record_id, a.upload_time, a.filename, a.analysis_status, a.final_prediction,
		        a.profile <-> ref.profile AS distance
		 FROM analyses a, (SELECT profile FROM analyses WHERE record_id = $1) ref
		 WHERE a.record_id <> $1
		 ORDER BY a.profile <-> ref.profile
		 LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("similar records %s: %w", id, err)
	}
	defer rows.Close()

	var matches []SimilarMatch
	for rows.Next() {
		var m SimilarMatch
		var rid string
		if err := rows.Scan(&rid, &m.UploadTime, &m.Filename, &m.AnalysisStatus, &m.FinalPrediction, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan similar record: %w", err)
		}
		m.ID = models.RecordID(rid)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
