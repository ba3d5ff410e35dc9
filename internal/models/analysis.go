package models

import "time"

// Scores are the 0-100 ratings produced by the analysis service.
type Scores struct {
	Overall        int `json:"overall"`
	Communication  int `json:"communication"`
	Technical      int `json:"technical"`
	Confidence     int `json:"confidence"`
	ProblemSolving int `json:"problem_solving"`
}

// Clamp pins every score into [0, 100].
func (s Scores) Clamp() Scores {
	return Scores{
		Overall:        clampScore(s.Overall),
		Communication:  clampScore(s.Communication),
		Technical:      clampScore(s.Technical),
		Confidence:     clampScore(s.Confidence),
		ProblemSolving: clampScore(s.ProblemSolving),
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// AnalysisResult is the scored outcome of one eligible session.
type AnalysisResult struct {
	ID              string    `json:"id"`
	UserID          int64     `json:"user_id"`
	SessionID       string    `json:"session_id"`
	InterviewType   string    `json:"interview_type"`
	Scores          Scores    `json:"scores"`
	Strengths       []string  `json:"strengths"`
	Improvements    []string  `json:"areas_for_improvement"`
	Feedback        string    `json:"feedback"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	RecordingURL    string    `json:"recording_url,omitempty"`
	RecordingPath   string    `json:"recording_path,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// QuestionRecord is the per-question breakdown of an AnalysisResult.
type QuestionRecord struct {
	ID             string    `json:"id"`
	AnalysisID     string    `json:"analysis_id"`
	QuestionOrder  int       `json:"question_order"`
	QuestionText   string    `json:"question_text"`
	UserAnswer     string    `json:"user_answer"`
	Feedback       string    `json:"feedback"`
	Score          int       `json:"score"`
	ClarityScore   int       `json:"clarity_score"`
	RelevanceScore int       `json:"relevance_score"`
	DepthScore     int       `json:"depth_score"`
	CreatedAt      time.Time `json:"created_at"`
}
