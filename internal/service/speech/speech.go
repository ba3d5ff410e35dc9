// Package speech proxies transcription and speech synthesis vendors.
package speech

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"interviewprep/internal/apperr"
	"interviewprep/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	MaxSynthesisChars = 1500
	defaultTimeout    = 30 * time.Second
	defaultSampleRate = 22050
	defaultAudioMIME  = "audio/webm"
)

type Transcript struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

type SynthesisRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice,omitempty"`
	Language string  `json:"language,omitempty"`
	Pace     float64 `json:"pace,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
}

type Audio struct {
	AudioBase64 string `json:"audio"`
	SampleRate  int    `json:"sample_rate"`
}

// Service talks to Deepgram for speech-to-text and Sarvam for text-to-speech.
type Service struct {
	cfg      config.SpeechConfig
	deepgram *resty.Client
	sarvam   *resty.Client
	log      *zap.SugaredLogger
}

func NewService(cfg config.SpeechConfig, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Service{cfg: cfg, log: log}
	if cfg.DeepgramKey != "" {
		s.deepgram = resty.New().
			SetBaseURL(strings.TrimRight(cfg.DeepgramURL, "/")).
			SetTimeout(defaultTimeout).
			SetHeader("Authorization", "Token "+cfg.DeepgramKey)
	}
	if cfg.SarvamKey != "" {
		s.sarvam = resty.New().
			SetBaseURL(strings.TrimRight(cfg.SarvamURL, "/")).
			SetTimeout(defaultTimeout).
			SetHeader("api-subscription-key", cfg.SarvamKey)
	}
	return s
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type vendorError struct {
	Error   any    `json:"error"`
	ErrMsg  string `json:"err_msg"`
	Message string `json:"message"`
}

func (e *vendorError) text() string {
	switch v := e.Error.(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if e.ErrMsg != "" {
		return e.ErrMsg
	}
	return e.Message
}

// Transcribe sends one audio chunk for recognition. Unrecognized audio yields
// an empty transcript, not an error.
func (s *Service) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, apperr.Invalid("audio", "must not be empty")
	}
	if s.deepgram == nil {
		return nil, apperr.Upstream("transcription", 0, "transcription service not configured")
	}
	if mimeType == "" {
		mimeType = defaultAudioMIME
	}

	var (
		out    deepgramResponse
		errOut vendorError
	)
	resp, err := s.deepgram.R().
		SetContext(ctx).
		SetHeader("Content-Type", mimeType).
		SetQueryParams(map[string]string{
			"model":        s.cfg.DeepgramModel,
			"smart_format": "true",
			"punctuate":    "true",
		}).
		SetBody(audio).
		SetResult(&out).
		SetError(&errOut).
		Post("/v1/listen")
	if err != nil {
		return nil, apperr.Upstream("transcription", 0, err.Error())
	}
	if resp.IsError() {
		msg := errOut.text()
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		s.log.Warnf("deepgram returned %d: %s", resp.StatusCode(), msg)
		return nil, apperr.Upstream("transcription", resp.StatusCode(), msg)
	}

	result := &Transcript{IsFinal: true}
	if len(out.Results.Channels) > 0 && len(out.Results.Channels[0].Alternatives) > 0 {
		alt := out.Results.Channels[0].Alternatives[0]
		result.Transcript = strings.TrimSpace(alt.Transcript)
		result.Confidence = alt.Confidence
	}
	return result, nil
}

type sarvamRequest struct {
	Inputs             []string `json:"inputs"`
	TargetLanguageCode string   `json:"target_language_code"`
	Speaker            string   `json:"speaker,omitempty"`
	Pitch              float64  `json:"pitch"`
	Pace               float64  `json:"pace"`
	SpeechSampleRate   int      `json:"speech_sample_rate"`
	Model              string   `json:"model,omitempty"`
}

type sarvamResponse struct {
	Audios []string `json:"audios"`
}

// Synthesize renders text as speech. Text longer than MaxSynthesisChars is
// cut to that length.
func (s *Service) Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperr.Invalid("text", "is required")
	}
	if s.sarvam == nil {
		return nil, apperr.Upstream("synthesis", 0, "speech synthesis service not configured")
	}
	text = truncate(text, MaxSynthesisChars)

	lang := req.Language
	if lang == "" {
		lang = "en-IN"
	}
	pace := req.Pace
	if pace <= 0 {
		pace = 1.0
	}
	var (
		out    sarvamResponse
		errOut vendorError
	)
	resp, err := s.sarvam.R().
		SetContext(ctx).
		SetBody(sarvamRequest{
			Inputs:             []string{text},
			TargetLanguageCode: lang,
			Speaker:            req.Voice,
			Pitch:              req.Pitch,
			Pace:               pace,
			SpeechSampleRate:   defaultSampleRate,
			Model:              s.cfg.SarvamModel,
		}).
		SetResult(&out).
		SetError(&errOut).
		Post("/text-to-speech")
	if err != nil {
		return nil, apperr.Upstream("synthesis", 0, err.Error())
	}
	if resp.IsError() {
		msg := errOut.text()
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		s.log.Warnf("sarvam returned %d: %s", resp.StatusCode(), msg)
		return nil, apperr.Upstream("synthesis", resp.StatusCode(), msg)
	}
	if len(out.Audios) == 0 || out.Audios[0] == "" {
		return nil, apperr.Upstream("synthesis", resp.StatusCode(), "no audio returned")
	}
	return &Audio{AudioBase64: out.Audios[0], SampleRate: defaultSampleRate}, nil
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
