package recording

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"interviewprep/internal/auth"
	"interviewprep/internal/models"
	"interviewprep/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	ttls    []time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls = append(m.ttls, ttl)
	return "https://bucket.example/" + key + "?ttl=" + ttl.String(), nil
}

type linkRecorder struct {
	analysisID, url, path string
	err                   error
}

func (l *linkRecorder) UpdateAnalysisWithRecording(ctx context.Context, analysisID, url, path string) error {
	l.analysisID, l.url, l.path = analysisID, url, path
	return l.err
}

type inlineDispatcher struct {
	err error
}

func (d inlineDispatcher) Submit(job worker.Job) error {
	if d.err != nil {
		return d.err
	}
	job.Exec(context.Background())
	return nil
}

func TestObjectKeyFormat(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "42/abc-1700000000123.webm", ObjectKey(42, "abc", at, "video/webm;codecs=vp9"))
	assert.Equal(t, "42/abc-1700000000123.wav", ObjectKey(42, "abc", at, "audio/wav"))
	assert.Equal(t, "42/abc-1700000000123", ObjectKey(42, "abc", at, "application/octet-stream"))
}

func TestUploadRequiresIdentity(t *testing.T) {
	store := newMemoryStore()
	u := NewUploader(store, nil, nil)
	got := u.Upload(context.Background(), &models.RecordingBlob{Data: []byte("x")}, "a1")
	assert.Nil(t, got)
	assert.Empty(t, store.objects)
}

func TestUploadReturnsWeekLongURL(t *testing.T) {
	store := newMemoryStore()
	u := NewUploader(store, nil, nil)
	u.now = func() time.Time { return time.UnixMilli(1000) }

	ctx := auth.WithUser(context.Background(), 9)
	got := u.Upload(ctx, &models.RecordingBlob{Data: []byte("video"), MimeType: "video/webm"}, "a1")
	require.NotNil(t, got)
	assert.Equal(t, "9/a1-1000.webm", got.Path)
	assert.Equal(t, []byte("video"), store.objects[got.Path])
	assert.Equal(t, []time.Duration{UploadURLTTL}, store.ttls)
}

func TestUploadFailureIsSwallowed(t *testing.T) {
	store := newMemoryStore()
	store.putErr = errors.New("bucket unavailable")
	link := &linkRecorder{}
	u := NewUploader(store, link, nil)

	got := u.UploadAndLink(auth.WithUser(context.Background(), 1), &models.RecordingBlob{Data: []byte("x")}, "a1")
	assert.Nil(t, got)
	assert.Empty(t, link.analysisID, "nothing should be linked after a failed upload")
}

func TestUploadAndLinkToleratesLinkFailure(t *testing.T) {
	store := newMemoryStore()
	link := &linkRecorder{err: errors.New("row gone")}
	u := NewUploader(store, link, nil)

	got := u.UploadAndLink(auth.WithUser(context.Background(), 1), &models.RecordingBlob{Data: []byte("x")}, "a1")
	require.NotNil(t, got)
	assert.Equal(t, "a1", link.analysisID)
	assert.Equal(t, got.Path, link.path)
}

func TestGetRecordingURLIsHourLong(t *testing.T) {
	store := newMemoryStore()
	u := NewUploader(store, nil, nil)
	_, err := u.GetRecordingURL(context.Background(), "")
	assert.Error(t, err)

	_, err = u.GetRecordingURL(context.Background(), "1/a-1.webm")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{PlaybackURLTTL}, store.ttls)
	assert.Empty(t, store.objects)
}

func TestLocalStoreSignatureRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "secret", "/api/recordings")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "3/a-1.webm", []byte("data"), "video/webm"))
	signed, err := store.SignedURL(ctx, "3/a-1.webm", time.Hour)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed, "/api/recordings?sig="))

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	path, err := store.Resolve(parsed.Query().Get("sig"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "3", "a-1.webm"), path)

	_, err = store.Resolve(parsed.Query().Get("sig") + "x")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = store.Resolve(parsed.Query().Get("sig"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "secret", "")
	require.NoError(t, err)
	assert.Error(t, store.Put(context.Background(), "../evil", []byte("x"), ""))
	_, err = store.SignedURL(context.Background(), "/etc/passwd", time.Hour)
	assert.Error(t, err)
}

func TestAsyncUploadsAndClearsSpool(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(dir, time.Hour, nil)
	require.NoError(t, err)
	store := newMemoryStore()
	link := &linkRecorder{}
	async := NewAsync(NewUploader(store, link, nil), spool, inlineDispatcher{}, nil)

	ok := async.Submit(auth.WithUser(context.Background(), 4), "a9", &models.RecordingBlob{Data: []byte("v"), MimeType: "video/webm"})
	require.True(t, ok)
	assert.Equal(t, "a9", link.analysisID)
	assert.True(t, strings.HasPrefix(link.path, "4/a9-"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAsyncBusyDispatcherIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(dir, time.Hour, nil)
	require.NoError(t, err)
	async := NewAsync(NewUploader(newMemoryStore(), nil, nil), spool, inlineDispatcher{err: worker.ErrDispatcherBusy}, nil)

	ok := async.Submit(auth.WithUser(context.Background(), 4), "a9", &models.RecordingBlob{Data: []byte("v")})
	assert.False(t, ok)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpoolCleanerRemovesStaleEntries(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(dir, time.Minute, nil)
	require.NoError(t, err)

	id, err := spool.Write(1, "a", &models.RecordingBlob{Data: []byte("x"), MimeType: "audio/wav"})
	require.NoError(t, err)
	blob, err := spool.Read(id)
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", blob.MimeType)

	n, err := spool.cleanupExpired(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = spool.cleanupExpired(time.Now().Add(2 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = spool.Read(id)
	assert.Error(t, err)
}
