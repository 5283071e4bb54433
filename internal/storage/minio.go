package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/pitchview/internal/config"
	"github.com/your-org/pitchview/internal/models"
)

const framePrefix = "frames"

// MinIOStore archives the frame images of completed analyses so historical
// records can be replayed with pictures.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// ArchiveFrames replaces the archive of jobID with the frames that carry an
// image. Frames without images are skipped.
func (s *MinIOStore) ArchiveFrames(ctx context.Context, jobID string, frames []models.FrameRecord) error {
	prefix := jobPrefix(jobID)
	old, err := s.listObjects(ctx, prefix)
	if err != nil {
		return err
	}
	if len(old) > 0 {
		if err := s.deleteObjects(ctx, old); err != nil {
			return err
		}
	}

	for seq, f := range frames {
		if !f.HasImage() {
			continue
		}
		if err := s.putObject(ctx, frameKey(jobID, seq, f.FrameNum), f.Image, "image/jpeg"); err != nil {
			return err
		}
	}
	return nil
}

// LoadFrames returns the archived frames of jobID in arrival order, images
// only. An unknown job yields no frames.
func (s *MinIOStore) LoadFrames(ctx context.Context, jobID string) ([]models.FrameRecord, error) {
	keys, err := s.listObjects(ctx, jobPrefix(jobID))
	if err != nil {
		return nil, err
	}

	type entry struct {
		key      string
		seq      int
		frameNum int
	}
	entries := make([]entry, 0, len(keys))
	for _, key := range keys {
		seq, frameNum, ok := parseFrameKey(key)
		if !ok {
			continue
		}
		entries = append(entries, entry{key: key, seq: seq, frameNum: frameNum})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	frames := make([]models.FrameRecord, 0, len(entries))
	for _, e := range entries {
		data, err := s.getObject(ctx, e.key)
		if err != nil {
			return nil, err
		}
		frames = append(frames, models.FrameRecord{FrameNum: e.frameNum, Image: data})
	}
	return frames, nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func jobPrefix(jobID string) string {
	return framePrefix + "/" + jobID + "/"
}

// frameKey is frames/{job}/{seq}-{frame}.jpg; seq keeps duplicate frame
// numbers apart and preserves arrival order.
func frameKey(jobID string, seq, frameNum int) string {
	return fmt.Sprintf("%s%06d-%d.jpg", jobPrefix(jobID), seq, frameNum)
}

func parseFrameKey(key string) (seq, frameNum int, ok bool) {
	name := strings.TrimSuffix(path.Base(key), ".jpg")
	if name == path.Base(key) {
		return 0, 0, false
	}
	seqPart, numPart, found := strings.Cut(name, "-")
	if !found {
		return 0, 0, false
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq < 0 {
		return 0, 0, false
	}
	frameNum, err = strconv.Atoi(numPart)
	if err != nil {
		return 0, 0, false
	}
	return seq, frameNum, true
}

func (s *MinIOStore) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStore) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *MinIOStore) listObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *MinIOStore) deleteObjects(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}
