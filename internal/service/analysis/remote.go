package analysis

import (
	"context"
	"strings"
	"time"

	"interviewprep/internal/apperr"

	"github.com/go-resty/resty/v2"
)

const defaultRemoteTimeout = 60 * time.Second

// RemoteBackend posts the request to an HTTP analysis function.
type RemoteBackend struct {
	client *resty.Client
	url    string
}

// NewRemoteBackend targets url; apiKey, when set, is sent as a bearer token.
func NewRemoteBackend(url, apiKey string, timeout time.Duration) *RemoteBackend {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &RemoteBackend{client: client, url: url}
}

func (b *RemoteBackend) Analyze(ctx context.Context, req Request) (*Envelope, error) {
	var (
		env    Envelope
		errEnv Envelope
	)
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&env).
		SetError(&errEnv).
		Post(b.url)
	if err != nil {
		return nil, apperr.Upstream(serviceName, 0, err.Error())
	}
	if resp.IsError() {
		msg := errEnv.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, apperr.Upstream(serviceName, resp.StatusCode(), msg)
	}
	return &env, nil
}
