package recording

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSignature = errors.New("invalid or expired recording signature")

// LocalStore writes recordings under a directory and signs playback links
// with an HS256 token carrying the object key.
type LocalStore struct {
	dir     string
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewLocalStore serves signed links as {baseURL}?sig=<token>.
func NewLocalStore(dir, secret, baseURL string) (*LocalStore, error) {
	if secret == "" {
		return nil, errors.New("signing secret required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	if baseURL == "" {
		baseURL = "/api/recordings"
	}
	return &LocalStore{dir: dir, secret: []byte(secret), baseURL: baseURL, now: time.Now}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o600)
}

func (s *LocalStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign recording url: %w", err)
	}
	return s.baseURL + "?sig=" + url.QueryEscape(signed), nil
}

// Resolve verifies a signature and returns the file it grants access to.
func (s *LocalStore) Resolve(sig string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(sig, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", ErrInvalidSignature
	}
	full, err := s.path(claims.Subject)
	if err != nil {
		return "", ErrInvalidSignature
	}
	return full, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}
