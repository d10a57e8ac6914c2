// Package chat answers user messages: code snippets get a code check report,
// everything else is matched against the pattern corpus and styled.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jeefy/pybot/internal/codecheck"
	"github.com/jeefy/pybot/internal/match"
	"github.com/jeefy/pybot/internal/metrics"
	"github.com/jeefy/pybot/internal/models"
	"github.com/jeefy/pybot/internal/store"
	"github.com/jeefy/pybot/internal/style"
)

var ErrEmptyMessage = errors.New("no message provided")

const (
	apologyMessage = "Sorry, I encountered an error. Please try rephrasing your question about Python programming."
	lowConfidence  = 0.1
	codeConfidence = 1.0
)

// Fallback is the answer returned when a request fails internally.
func Fallback() models.ChatResponse {
	return models.ChatResponse{
		Message:    apologyMessage,
		Confidence: lowConfidence,
		Category:   models.CategoryError,
		Style:      string(style.Balanced),
	}
}

type Service struct {
	store   store.Store
	matcher *match.Matcher
	checker *codecheck.Checker
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewService wires the answer pipeline. A nil checker disables the code path, nil
// metrics disables timing.
func NewService(st store.Store, checker *codecheck.Checker, mc *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		matcher: match.NewMatcher(nil),
		checker: checker,
		metrics: mc,
		logger:  logger,
	}
}

func (s *Service) BackendName() string { return s.matcher.BackendName() }

// Respond answers one chat message and records the exchange. On internal failure
// it returns Fallback() together with the error.
func (s *Service) Respond(ctx context.Context, req models.ChatRequest) (resp models.ChatResponse, err error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return models.ChatResponse{}, ErrEmptyMessage
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while answering: %v", r)
		}
		if err != nil {
			s.metrics.CountOutcome(metrics.OutcomeFallback)
			resp = Fallback()
		}
	}()

	st := style.Parse(req.Style)
	resp, outcome, err := s.answer(ctx, msg, st)
	if err != nil {
		return resp, err
	}

	input := req.OriginalMessage
	if strings.TrimSpace(input) == "" {
		input = msg
	}
	done := s.metrics.Time(metrics.OpDBWrite)
	_, err = s.store.SaveConversation(ctx, &models.ConversationRecord{
		InputText:  input,
		Response:   resp.Message,
		Confidence: resp.Confidence,
		Category:   resp.Category,
		Style:      resp.Style,
	})
	done()
	if err != nil {
		return resp, fmt.Errorf("record conversation: %w", err)
	}
	s.metrics.CountOutcome(outcome)
	s.logger.Debug("answered", "category", resp.Category, "confidence", resp.Confidence, "style", resp.Style)
	return resp, nil
}

func (s *Service) answer(ctx context.Context, msg string, st style.Style) (models.ChatResponse, string, error) {
	if s.checker != nil {
		done := s.metrics.Time(metrics.OpCodeCheck)
		report, ok, err := s.checker.CheckMessage(ctx, msg, st)
		done()
		if err != nil {
			return models.ChatResponse{}, "", fmt.Errorf("check code: %w", err)
		}
		if ok {
			return models.ChatResponse{
				Message:    report.Render(),
				Confidence: codeConfidence,
				Category:   models.CategoryCodeCheck,
				Style:      string(st),
			}, metrics.OutcomeCode, nil
		}
	}

	done := s.metrics.Time(metrics.OpDBQuery)
	patterns, err := s.store.ListPatterns(ctx, store.PatternFilter{})
	done()
	if err != nil {
		return models.ChatResponse{}, "", fmt.Errorf("load patterns: %w", err)
	}

	done = s.metrics.Time(metrics.OpMatch)
	best, ok := s.matcher.Best(msg, patterns)
	done()
	if !ok {
		return models.ChatResponse{
			Message:    style.Default(st),
			Confidence: lowConfidence,
			Category:   models.CategoryDefault,
			Style:      string(st),
		}, metrics.OutcomeDefault, nil
	}
	return models.ChatResponse{
		Message:    style.Apply(best.Response, st, best.Category),
		Confidence: best.Score,
		Category:   best.Category,
		Style:      string(st),
	}, metrics.OutcomeMatched, nil
}

// Train adds a user supplied pattern.
func (s *Service) Train(ctx context.Context, req models.TrainRequest) (int64, error) {
	p := &models.PatternEntry{Pattern: req.Pattern, Response: req.Response, Category: req.Category}
	id, err := s.store.AddPattern(ctx, p)
	if err != nil {
		return 0, err
	}
	s.logger.Info("trained pattern", "id", id, "pattern", p.Pattern, "category", p.Category)
	return id, nil
}

// Stats reports store totals plus runtime metrics.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	if s.metrics != nil {
		st.Runtime = s.metrics.Snapshot()
	}
	return st, nil
}
