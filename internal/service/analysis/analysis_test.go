package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"interviewprep/internal/apperr"
	"interviewprep/internal/models"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() Request {
	return Request{
		SessionID:     "sess-1",
		InterviewType: "technical",
		Transcript: []models.Utterance{
			{Speaker: models.SpeakerAI, Text: "Tell me about a hard bug you fixed."},
			{Speaker: models.SpeakerUser, Text: "A race in our cache layer that only showed up under load."},
		},
		DurationSeconds: 600,
	}
}

func TestRemoteBackendSuccess(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"analysis":{"score":82,"communication":80,"technical":85,"confidence":70,"problemSolving":90,
			"strengths":["clear"],"improvements":["pace"],"feedback":"good",
			"questions":[{"question":"q1","answer":"a1","score":75,"clarity":70,"relevance":80,"depth":60}]}}`))
	}))
	defer srv.Close()

	r := NewRequestor(NewRemoteBackend(srv.URL, "secret", time.Second), nil)
	res, err := r.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "sess-1", got.SessionID)
	assert.Len(t, got.Transcript, 2)
	assert.Equal(t, 82, res.Analysis.Scores.Overall)
	assert.Equal(t, 90, res.Analysis.Scores.ProblemSolving)
	assert.Equal(t, "technical", res.Analysis.InterviewType)
	assert.Equal(t, 600, res.Analysis.DurationSeconds)
	require.Len(t, res.Questions, 1)
	assert.Equal(t, "q1", res.Questions[0].QuestionText)
	assert.Equal(t, 60, res.Questions[0].DepthScore)
}

func TestRemoteBackendNonSuccessStatusPassesMessageThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"error":"Rate limit exceeded, please try again later"}`))
	}))
	defer srv.Close()

	r := NewRequestor(NewRemoteBackend(srv.URL, "", time.Second), nil)
	_, err := r.Analyze(context.Background(), sampleRequest())
	require.Error(t, err)

	var upstream *apperr.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusTooManyRequests, upstream.Status)
	assert.Equal(t, "Rate limit exceeded, please try again later", err.Error())
}

func TestRequestorRejectsMissingSuccessMarker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"analysis":{"score":50},"error":"model overloaded"}`))
	}))
	defer srv.Close()

	r := NewRequestor(NewRemoteBackend(srv.URL, "", time.Second), nil)
	_, err := r.Analyze(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, "model overloaded", err.Error())
	assert.Equal(t, "upstream_error", apperr.Code(err))
	assert.Equal(t, 1, calls, "no retries")
}

func TestRequestorValidatesBeforeCallingBackend(t *testing.T) {
	backend := &countingBackend{}
	r := NewRequestor(backend, nil)

	req := sampleRequest()
	req.Transcript = nil
	_, err := r.Analyze(context.Background(), req)
	assert.Equal(t, "validation_error", apperr.Code(err))
	assert.Zero(t, backend.calls)
}

func TestModelBackendParsesFencedJSON(t *testing.T) {
	chat := &fakeChat{reply: "```json\n{\"score\":101,\"communication\":-3,\"strengths\":[\"calm\"],\"questions\":[{\"question\":\"q\"}]}\n```"}
	r := NewRequestor(NewModelBackend(chat, "openai"), nil)

	res, err := r.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, 100, res.Analysis.Scores.Overall)
	assert.Equal(t, 0, res.Analysis.Scores.Communication)
	assert.Equal(t, []string{"calm"}, res.Analysis.Strengths)
	assert.Equal(t, []string{}, res.Analysis.Improvements)
	require.Len(t, chat.seen, 2)
	assert.Contains(t, chat.seen[1].Content, "Candidate: A race in our cache layer")
}

func TestModelBackendHandleReportsFailure(t *testing.T) {
	b := NewModelBackend(&fakeChat{err: errors.New("quota exhausted")}, "openai")
	env := b.Handle(context.Background(), sampleRequest())
	assert.False(t, env.Success)
	assert.Equal(t, "quota exhausted", env.Error)

	env = b.Handle(context.Background(), Request{SessionID: "x"})
	assert.False(t, env.Success)
	assert.Equal(t, "transcript is required", env.Error)
}

type countingBackend struct{ calls int }

func (b *countingBackend) Analyze(context.Context, Request) (*Envelope, error) {
	b.calls++
	return &Envelope{Success: true, Analysis: &Payload{}}, nil
}

type fakeChat struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}
