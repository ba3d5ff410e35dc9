// Package resume scores resumes against an optional target role.
package resume

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"interviewprep/internal/apperr"
	"interviewprep/internal/service/analysis"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	MinResumeChars = 50
	serviceName    = "resume"
)

// Sections lists the seven areas every scan reports on, in display order.
var Sections = []string{
	"contact_info",
	"summary",
	"experience",
	"education",
	"skills",
	"formatting",
	"ats_compatibility",
}

type ScanRequest struct {
	ResumeText string `json:"resume_text"`
	TargetRole string `json:"target_role,omitempty"`
}

type SectionScore struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

type Keywords struct {
	Found   []string `json:"found"`
	Missing []string `json:"missing"`
}

type ScanResult struct {
	OverallScore int            `json:"overall_score"`
	Sections     []SectionScore `json:"sections"`
	Suggestions  []string       `json:"suggestions"`
	Keywords     Keywords       `json:"keywords"`
	Strengths    []string       `json:"strengths"`
}

// TextReader turns an uploaded document into plain text.
type TextReader interface {
	ReadText(ctx context.Context, path string) (string, error)
}

type generateFunc func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error)

// Scanner asks an LLM to grade a resume. With a target role and an agent it
// may search the web for the role's expectations first.
type Scanner struct {
	chat   generateFunc
	agent  generateFunc
	reader TextReader
	log    *zap.SugaredLogger
}

func NewScanner(chat model.BaseChatModel, agent *react.Agent, reader TextReader, log *zap.SugaredLogger) *Scanner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Scanner{reader: reader, log: log}
	if chat != nil {
		s.chat = func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
			return chat.Generate(ctx, msgs)
		}
	}
	if agent != nil {
		s.agent = func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
			return agent.Generate(ctx, msgs)
		}
	}
	return s
}

const scanSystemPrompt = "You are a senior recruiter grading a resume. " +
	"Score it from 0 to 100 overall and on each of these sections: contact_info, summary, experience, education, skills, formatting, ats_compatibility. " +
	"Give one or two sentences of feedback per section, concrete suggestions, the role keywords found and missing, and the resume's strengths. " +
	"Respond with a single JSON object and nothing else, using exactly these keys: " +
	`{"overall_score":0,"sections":[{"name":"","score":0,"feedback":""}],` +
	`"suggestions":[""],"keywords":{"found":[""],"missing":[""]},"strengths":[""]}`

// Scan grades resume text. Text shorter than MinResumeChars is rejected
// before any model call.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	text := strings.TrimSpace(req.ResumeText)
	if utf8.RuneCountInString(text) < MinResumeChars {
		return nil, apperr.Invalid("resume_text", "must be at least %d characters", MinResumeChars)
	}
	gen := s.chat
	role := strings.TrimSpace(req.TargetRole)
	if role != "" && s.agent != nil {
		gen = s.agent
	}
	if gen == nil {
		return nil, apperr.Upstream(serviceName, 0, "resume scoring not configured")
	}

	var user strings.Builder
	if role != "" {
		fmt.Fprintf(&user, "Target role: %s\n\n", role)
	}
	user.WriteString("Resume:\n")
	user.WriteString(text)

	resp, err := gen(ctx, []*schema.Message{
		{Role: schema.System, Content: scanSystemPrompt},
		{Role: schema.User, Content: user.String()},
	})
	if err != nil {
		s.log.Errorf("resume scan failed: %v", err)
		return nil, apperr.Upstream(serviceName, 0, err.Error())
	}
	if resp == nil {
		return nil, apperr.Upstream(serviceName, 0, "empty model response")
	}
	var out ScanResult
	if err := analysis.DecodeJSON(resp.Content, &out); err != nil {
		return nil, apperr.Upstream(serviceName, 0, fmt.Sprintf("could not parse resume scan: %v", err))
	}
	return normalize(&out), nil
}

// ScanFile extracts the text of an uploaded document and scans it.
func (s *Scanner) ScanFile(ctx context.Context, path, targetRole string) (*ScanResult, error) {
	if s.reader == nil {
		return nil, apperr.Invalid("file", "document upload not supported")
	}
	text, err := s.reader.ReadText(ctx, path)
	if err != nil {
		return nil, apperr.Invalid("file", "unreadable document: %v", err)
	}
	return s.Scan(ctx, ScanRequest{ResumeText: text, TargetRole: targetRole})
}

// normalize clamps scores and guarantees one entry per known section.
func normalize(in *ScanResult) *ScanResult {
	in.OverallScore = clamp(in.OverallScore)
	byName := make(map[string]SectionScore, len(in.Sections))
	for _, sec := range in.Sections {
		name := strings.ToLower(strings.TrimSpace(sec.Name))
		sec.Name = name
		sec.Score = clamp(sec.Score)
		byName[name] = sec
	}
	sections := make([]SectionScore, 0, len(Sections))
	for _, name := range Sections {
		sec, ok := byName[name]
		if !ok {
			sec = SectionScore{Name: name}
		}
		sections = append(sections, sec)
	}
	in.Sections = sections
	in.Suggestions = nonNil(in.Suggestions)
	in.Strengths = nonNil(in.Strengths)
	in.Keywords.Found = nonNil(in.Keywords.Found)
	in.Keywords.Missing = nonNil(in.Keywords.Missing)
	return in
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
