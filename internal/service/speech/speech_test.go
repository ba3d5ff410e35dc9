package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"interviewprep/internal/apperr"
	"interviewprep/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribeParsesFirstAlternative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		assert.Equal(t, "nova-2", r.URL.Query().Get("model"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "RIFF", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":" hello there ","confidence":0.93}]}]}}`))
	}))
	defer srv.Close()

	s := NewService(config.SpeechConfig{DeepgramKey: "dg-key", DeepgramModel: "nova-2", DeepgramURL: srv.URL}, nil)
	out, err := s.Transcribe(context.Background(), []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "hello there", out.Transcript)
	assert.InDelta(t, 0.93, out.Confidence, 0.0001)
	assert.True(t, out.IsFinal)
}

func TestTranscribeEmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	s := NewService(config.SpeechConfig{DeepgramKey: "k", DeepgramURL: srv.URL}, nil)
	out, err := s.Transcribe(context.Background(), []byte{1, 2}, "")
	require.NoError(t, err)
	assert.Equal(t, "", out.Transcript)
}

func TestTranscribeQuotaFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"err_msg":"Insufficient credits"}`))
	}))
	defer srv.Close()

	s := NewService(config.SpeechConfig{DeepgramKey: "k", DeepgramURL: srv.URL}, nil)
	_, err := s.Transcribe(context.Background(), []byte{1}, "audio/webm")
	var upstream *apperr.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusPaymentRequired, upstream.Status)
	assert.Equal(t, "Insufficient credits", upstream.Message)
}

func TestSynthesizeTruncatesLongText(t *testing.T) {
	var got sarvamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech", r.URL.Path)
		assert.Equal(t, "sv-key", r.Header.Get("api-subscription-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"audios":["UklGRg=="]}`))
	}))
	defer srv.Close()

	s := NewService(config.SpeechConfig{SarvamKey: "sv-key", SarvamURL: srv.URL, SarvamModel: "bulbul:v2"}, nil)
	out, err := s.Synthesize(context.Background(), SynthesisRequest{Text: strings.Repeat("ab", 1000), Voice: "anushka"})
	require.NoError(t, err)
	assert.Equal(t, "UklGRg==", out.AudioBase64)
	assert.Equal(t, defaultSampleRate, out.SampleRate)

	require.Len(t, got.Inputs, 1)
	assert.Equal(t, MaxSynthesisChars, utf8.RuneCountInString(got.Inputs[0]))
	assert.Equal(t, "anushka", got.Speaker)
	assert.Equal(t, "en-IN", got.TargetLanguageCode)
	assert.Equal(t, 1.0, got.Pace)
}

func TestSynthesizeRequiresTextAndConfig(t *testing.T) {
	s := NewService(config.SpeechConfig{}, nil)
	_, err := s.Synthesize(context.Background(), SynthesisRequest{Text: "  "})
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = s.Synthesize(context.Background(), SynthesisRequest{Text: "hello"})
	var upstream *apperr.UpstreamError
	assert.ErrorAs(t, err, &upstream)
}
