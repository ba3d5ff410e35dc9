package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"interviewprep/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSpoolTTL           = 24 * time.Hour
	DefaultSpoolCleanInterval = time.Hour

	blobSuffix = ".blob"
	metaSuffix = ".json"
)

type spoolMeta struct {
	UserID     int64     `json:"user_id"`
	AnalysisID string    `json:"analysis_id"`
	MimeType   string    `json:"mime_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// Spool holds recordings on local disk between the request that delivered
// them and the background upload.
type Spool struct {
	dir string
	ttl time.Duration
	log *zap.SugaredLogger
}

func NewSpool(dir string, ttl time.Duration, log *zap.SugaredLogger) (*Spool, error) {
	if dir == "" {
		return nil, errors.New("spool dir required")
	}
	if ttl <= 0 {
		ttl = DefaultSpoolTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{dir: dir, ttl: ttl, log: log}, nil
}

// Write persists blob and returns the spool entry id.
func (s *Spool) Write(userID int64, analysisID string, blob *models.RecordingBlob) (string, error) {
	id := uuid.NewString()
	meta, err := json.Marshal(spoolMeta{
		UserID:     userID,
		AnalysisID: analysisID,
		MimeType:   blob.MimeType,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, id+blobSuffix), blob.Data, 0o600); err != nil {
		return "", fmt.Errorf("spool recording: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, id+metaSuffix), meta, 0o600); err != nil {
		s.Remove(id)
		return "", fmt.Errorf("spool recording meta: %w", err)
	}
	return id, nil
}

// Read loads a spooled blob.
func (s *Spool) Read(id string) (*models.RecordingBlob, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, id+metaSuffix))
	if err != nil {
		return nil, err
	}
	var meta spoolMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode spool meta %s: %w", id, err)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id+blobSuffix))
	if err != nil {
		return nil, err
	}
	return &models.RecordingBlob{Data: data, MimeType: meta.MimeType}, nil
}

func (s *Spool) Remove(id string) {
	for _, suffix := range []string{blobSuffix, metaSuffix} {
		if err := os.Remove(filepath.Join(s.dir, id+suffix)); err != nil && !os.IsNotExist(err) {
			s.log.Warnf("remove spool file %s%s failed: %v", id, suffix, err)
		}
	}
}

// StartCleaner deletes spooled files older than the TTL until ctx ends.
func (s *Spool) StartCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSpoolCleanInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Spool) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.cleanupExpired(time.Now()); err != nil {
				s.log.Warnf("cleanup spool error: %v", err)
			} else if n > 0 {
				s.log.Infof("cleanup spool removed %d stale recordings", n)
			}
		}
	}
}

func (s *Spool) cleanupExpired(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, blobSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < s.ttl {
			continue
		}
		s.Remove(strings.TrimSuffix(name, blobSuffix))
		removed++
	}
	return removed, nil
}
