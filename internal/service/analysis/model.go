package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"interviewprep/internal/apperr"
	"interviewprep/internal/models"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator is the part of an eino chat model the backend needs.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ModelBackend scores transcripts with an LLM and builds the envelope itself.
type ModelBackend struct {
	chat     Generator
	provider string
}

func NewModelBackend(chat Generator, provider string) *ModelBackend {
	return &ModelBackend{chat: chat, provider: provider}
}

const analysisSystemPrompt = "You are an experienced technical interviewer reviewing a mock interview. " +
	"Score the candidate from 0 to 100 on overall performance, communication, technical depth, confidence and problem solving. " +
	"Break the interview into the questions the interviewer asked, in order, with the candidate's answer, short feedback and 0-100 scores for the answer, clarity, relevance and depth. " +
	"Respond with a single JSON object and nothing else, using exactly these keys: " +
	`{"score":0,"communication":0,"technical":0,"confidence":0,"problemSolving":0,` +
	`"strengths":[""],"improvements":[""],"feedback":"",` +
	`"questions":[{"question":"","answer":"","feedback":"","score":0,"clarity":0,"relevance":0,"depth":0}]}`

func (b *ModelBackend) Analyze(ctx context.Context, req Request) (*Envelope, error) {
	if b.chat == nil {
		return nil, apperr.Upstream(serviceName, 0, "analysis model not configured")
	}
	var user strings.Builder
	fmt.Fprintf(&user, "Interview type: %s\n", req.InterviewType)
	if req.DurationSeconds > 0 {
		fmt.Fprintf(&user, "Duration: %d seconds\n", req.DurationSeconds)
	}
	user.WriteString("\nTranscript:\n")
	user.WriteString(formatTranscript(req.Transcript))

	resp, err := b.chat.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: analysisSystemPrompt},
		{Role: schema.User, Content: user.String()},
	})
	if err != nil {
		return nil, apperr.Upstream(b.provider, 0, err.Error())
	}
	if resp == nil {
		return nil, apperr.Upstream(b.provider, 0, "empty model response")
	}
	var payload Payload
	if err := DecodeJSON(resp.Content, &payload); err != nil {
		return &Envelope{Success: false, Error: fmt.Sprintf("could not parse analysis: %v", err)}, nil
	}
	return &Envelope{Success: true, Analysis: &payload}, nil
}

// Handle runs a request and always returns an envelope, as the HTTP function does.
func (b *ModelBackend) Handle(ctx context.Context, req Request) Envelope {
	if len(req.Transcript) == 0 {
		return Envelope{Success: false, Error: "transcript is required"}
	}
	env, err := b.Analyze(ctx, req)
	if err != nil {
		return Envelope{Success: false, Error: err.Error()}
	}
	return *env
}

// DecodeJSON unmarshals the first JSON object found in a model reply,
// tolerating markdown code fences around it.
func DecodeJSON(content string, v any) error {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no json object in response")
	}
	return json.Unmarshal([]byte(content[start:end+1]), v)
}

func formatTranscript(items []models.Utterance) string {
	var b strings.Builder
	for _, u := range items {
		if u.Speaker == models.SpeakerAI {
			b.WriteString("Interviewer: ")
		} else {
			b.WriteString("Candidate: ")
		}
		b.WriteString(u.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
