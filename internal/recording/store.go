package recording

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"
)

// ObjectStore is the private bucket recordings live in.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

const (
	// UploadURLTTL is the validity of the URL returned right after upload.
	UploadURLTTL = 7 * 24 * time.Hour
	// PlaybackURLTTL is the validity of URLs minted for later playback.
	PlaybackURLTTL = time.Hour
)

// ObjectKey builds {userId}/{analysisId}-{unix millis}{ext}.
func ObjectKey(userID int64, analysisID string, at time.Time, mimeType string) string {
	return fmt.Sprintf("%d/%s-%d%s", userID, analysisID, at.UnixMilli(), extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch base {
	case "video/webm", "audio/webm":
		return ".webm"
	case "video/mp4", "audio/mp4":
		return ".mp4"
	case "audio/ogg", "video/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "":
		return ".webm"
	}
	return ""
}
