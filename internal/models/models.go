package models

import "time"

// Pattern sources. Built-in rows are owned by the embedded corpus and rewritten on
// seed; trained rows are only ever inserted.
const (
	SourceBuiltin = "builtin"
	SourceTrained = "trained"
)

// Response categories that do not come from the corpus.
const (
	CategoryCodeCheck = "code_check"
	CategoryDefault   = "default"
	CategoryError     = "error"
	CategoryCustom    = "custom"
)

type PatternEntry struct {
	ID       int64  `json:"id,omitempty" yaml:"-"`
	Pattern  string `json:"pattern" yaml:"pattern"`
	Response string `json:"response" yaml:"response"`
	Category string `json:"category" yaml:"category"`
	Source   string `json:"source,omitempty" yaml:"-"`
}

type ConversationRecord struct {
	ID         int64     `json:"id"`
	InputText  string    `json:"input_text"`
	Response   string    `json:"response_text"`
	Confidence float64   `json:"confidence"`
	Category   string    `json:"category,omitempty"`
	Style      string    `json:"style,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MatchResult is computed per request and never persisted.
type MatchResult struct {
	Pattern  string  `json:"pattern"`
	Response string  `json:"response"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

type ChatRequest struct {
	Message         string `json:"message"`
	Style           string `json:"style,omitempty"`
	OriginalMessage string `json:"original_message,omitempty"`
}

type ChatResponse struct {
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
	Style      string  `json:"style"`
}

type TrainRequest struct {
	Pattern  string `json:"pattern"`
	Response string `json:"response"`
	Category string `json:"category,omitempty"`
}

// Stats summarises the store contents for GET /stats.
type Stats struct {
	TotalConversations int64            `json:"total_conversations"`
	TotalPatterns      int64            `json:"total_patterns"`
	TrainedPatterns    int64            `json:"trained_patterns"`
	Categories         map[string]int64 `json:"categories"`
	Runtime            any              `json:"runtime,omitempty"`
}
