package recording

import (
	"context"
	"time"

	"interviewprep/internal/apperr"
	"interviewprep/internal/auth"
	"interviewprep/internal/models"

	"go.uber.org/zap"
)

// Uploaded describes a stored recording.
type Uploaded struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Linker attaches a stored recording to its analysis record.
type Linker interface {
	UpdateAnalysisWithRecording(ctx context.Context, analysisID, url, path string) error
}

// Uploader moves finished captures into the object store. Every failure on
// this path is logged and swallowed; the analysis stays valid without a
// recording.
type Uploader struct {
	store  ObjectStore
	linker Linker
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewUploader(store ObjectStore, linker Linker, log *zap.SugaredLogger) *Uploader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Uploader{store: store, linker: linker, log: log, now: time.Now}
}

// Upload stores blob for analysisID and returns a 7-day URL, or nil when
// there is no identity on ctx or the store fails.
func (u *Uploader) Upload(ctx context.Context, blob *models.RecordingBlob, analysisID string) *Uploaded {
	id, ok := auth.UserFromContext(ctx)
	if !ok {
		u.log.Warnf("recording upload for analysis %s skipped: %v", analysisID, apperr.ErrAuthRequired)
		return nil
	}
	if blob.Empty() || analysisID == "" {
		return nil
	}
	contentType := blob.MimeType
	if contentType == "" {
		contentType = "video/webm"
	}
	key := ObjectKey(id.UserID, analysisID, u.now(), contentType)
	if err := u.store.Put(ctx, key, blob.Data, contentType); err != nil {
		u.log.Errorf("%v", &apperr.StorageError{Op: "upload", Err: err})
		return nil
	}
	url, err := u.store.SignedURL(ctx, key, UploadURLTTL)
	if err != nil {
		u.log.Errorf("%v", &apperr.StorageError{Op: "sign", Err: err})
		return nil
	}
	return &Uploaded{URL: url, Path: key}
}

// GetRecordingURL mints a fresh 1-hour URL for an existing object.
func (u *Uploader) GetRecordingURL(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", apperr.Invalid("path", "recording path required")
	}
	url, err := u.store.SignedURL(ctx, path, PlaybackURLTTL)
	if err != nil {
		return "", &apperr.StorageError{Op: "sign", Err: err}
	}
	return url, nil
}

// UploadAndLink uploads blob and records the result on the analysis. A link
// failure leaves the object in place and is only logged.
func (u *Uploader) UploadAndLink(ctx context.Context, blob *models.RecordingBlob, analysisID string) *Uploaded {
	up := u.Upload(ctx, blob, analysisID)
	if up == nil || u.linker == nil {
		return up
	}
	if err := u.linker.UpdateAnalysisWithRecording(ctx, analysisID, up.URL, up.Path); err != nil {
		u.log.Warnf("%v", &apperr.StorageError{Op: "link", Err: err})
	}
	return up
}
