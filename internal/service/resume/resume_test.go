package resume

import (
	"context"
	"errors"
	"strings"
	"testing"

	"interviewprep/internal/apperr"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	calls int
	reply string
	err   error
	last  []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type fakeReader struct {
	text string
	err  error
}

func (r fakeReader) ReadText(context.Context, string) (string, error) {
	return r.text, r.err
}

const sampleResume = "Jane Doe, backend engineer. Eight years building Go services, SQL, Kubernetes and event pipelines."

func TestScanRejectsShortTextBeforeModelCall(t *testing.T) {
	chat := &fakeChat{reply: "{}"}
	s := NewScanner(chat, nil, nil, nil)

	_, err := s.Scan(context.Background(), ScanRequest{ResumeText: "   " + strings.Repeat("a", 49) + "   "})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "resume_text", verr.Field)
	assert.Equal(t, 0, chat.calls)
}

func TestScanNormalizesSections(t *testing.T) {
	chat := &fakeChat{reply: "```json\n" + `{"overall_score":140,"sections":[{"name":"Experience","score":90,"feedback":"strong"},{"name":"skills","score":-4}],` +
		`"suggestions":["add metrics"],"keywords":{"found":["go"]},"strengths":["depth"]}` + "\n```"}
	s := NewScanner(chat, nil, nil, nil)

	res, err := s.Scan(context.Background(), ScanRequest{ResumeText: sampleResume, TargetRole: "Staff Engineer"})
	require.NoError(t, err)
	assert.Equal(t, 100, res.OverallScore)
	require.Len(t, res.Sections, 7)
	for i, sec := range res.Sections {
		assert.Equal(t, Sections[i], sec.Name)
	}
	assert.Equal(t, 90, res.Sections[2].Score)
	assert.Equal(t, "strong", res.Sections[2].Feedback)
	assert.Equal(t, 0, res.Sections[4].Score)
	assert.Equal(t, []string{"go"}, res.Keywords.Found)
	assert.Equal(t, []string{}, res.Keywords.Missing)

	require.Len(t, chat.last, 2)
	assert.Contains(t, chat.last[1].Content, "Target role: Staff Engineer")
}

func TestScanWrapsModelFailure(t *testing.T) {
	s := NewScanner(&fakeChat{err: errors.New("quota exceeded")}, nil, nil, nil)
	_, err := s.Scan(context.Background(), ScanRequest{ResumeText: sampleResume})
	var upstream *apperr.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "quota exceeded", upstream.Message)
}

func TestScanFileUsesReader(t *testing.T) {
	chat := &fakeChat{reply: `{"overall_score":70}`}
	s := NewScanner(chat, nil, fakeReader{text: sampleResume}, nil)
	res, err := s.ScanFile(context.Background(), "/tmp/resume.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, 70, res.OverallScore)

	s = NewScanner(chat, nil, fakeReader{text: "tiny"}, nil)
	_, err = s.ScanFile(context.Background(), "/tmp/resume.pdf", "")
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}
