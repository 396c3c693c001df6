// Package validation takes a structured action request, invokes the
// narrator, and validates the returned payload before it may reach the
// state store.
package validation

//go:generate mockgen -destination=mock/mock_pipeline.go -package=mockvalidation -source=pipeline.go

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/loreforge/loreforge/internal/clients/narrator"
	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
)

const defaultMaxAttempts = 3

// StateReader provides read-only snapshots for context building and
// invariant checks. The state store satisfies this.
type StateReader interface {
	Read() *game.State
}

// Result is a fully validated narrator response, safe to forward to the
// state store
type Result struct {
	Narration string
	Delta     *game.Delta
}

// Pipeline defines the validation pipeline interface
type Pipeline interface {
	// Submit resolves a pending action into a validated delta, retrying
	// the narrator with correction requests up to the attempt budget.
	// After exhausting attempts it returns an unvalidatable error and
	// the caller must treat the action as failed without mutating state.
	Submit(ctx context.Context, action *game.PendingAction, kind narrator.RequestKind) (*Result, error)
}

type pipeline struct {
	narrator    narrator.Client
	reader      StateReader
	maxAttempts int
	log         zerolog.Logger
}

// Config holds configuration for the pipeline
type Config struct {
	Narrator    narrator.Client // Required
	Reader      StateReader     // Required
	MaxAttempts int             // Optional, defaults to 3
	Logger      zerolog.Logger
}

// New creates a validation pipeline
func New(cfg *Config) Pipeline {
	if cfg.Narrator == nil {
		panic("narrator client is required")
	}
	if cfg.Reader == nil {
		panic("state reader is required")
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &pipeline{
		narrator:    cfg.Narrator,
		reader:      cfg.Reader,
		maxAttempts: attempts,
		log:         cfg.Logger,
	}
}

// Submit implements Pipeline
func (p *pipeline) Submit(ctx context.Context, action *game.PendingAction, kind narrator.RequestKind) (*Result, error) {
	if action == nil {
		return nil, apperr.InvalidArgument("action cannot be nil")
	}
	if strings.TrimSpace(action.Actor) == "" {
		return nil, apperr.InvalidArgument("action actor is required")
	}

	snapshot := p.reader.Read()
	stateCtx, err := buildContext(snapshot)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to serialize state context")
	}

	req := &narrator.Request{
		Kind:         kind,
		Action:       action,
		StateContext: stateCtx,
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if lastErr != nil {
			req.Kind = narrator.KindCorrection
			req.Correction = lastErr.Error()
		}

		raw, err := p.narrator.Generate(ctx, req)
		if err != nil {
			// Transport-level failure; not correctable by prompting
			return nil, apperr.WrapWithCode(err, apperr.CodeUnvalidatable, "narrator call failed").
				WithMeta("attempt", attempt)
		}

		result, err := p.check(raw, action, snapshot)
		if err == nil {
			if attempt > 1 {
				p.log.Info().Int("attempt", attempt).Str("actor", action.Actor).
					Msg("narrator response validated after correction")
			}
			return result, nil
		}

		p.log.Warn().Err(err).Int("attempt", attempt).Str("actor", action.Actor).
			Msg("narrator response failed validation")
		lastErr = err
	}

	return nil, apperr.WrapWithCode(lastErr, apperr.CodeUnvalidatable,
		"narrator output failed validation after bounded retries").
		WithMeta("attempts", p.maxAttempts).
		WithMeta("actor", action.Actor)
}

// check runs the schema check and the cross-field invariants. Nothing
// is forwarded unless the whole payload passes.
func (p *pipeline) check(raw []byte, action *game.PendingAction, snapshot *game.State) (*Result, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apperr.Wrap(err, "response is not valid JSON")
	}
	if err := compiledSchema.Validate(decoded); err != nil {
		return nil, apperr.WrapWithCode(err, apperr.CodeValidation, "response violates schema")
	}

	var cand narrator.Candidate
	if err := json.Unmarshal(raw, &cand); err != nil {
		return nil, apperr.Wrap(err, "failed to decode candidate")
	}

	delta := &game.Delta{}
	if len(cand.Delta) > 0 {
		if err := json.Unmarshal(cand.Delta, delta); err != nil {
			return nil, apperr.Wrap(err, "failed to decode delta")
		}
	}
	// The actor is always the submitting participant, whatever the
	// narrator claims
	delta.Actor = action.Actor
	delta.Narration = cand.Narration

	if err := delta.Validate(snapshot); err != nil {
		return nil, err
	}
	return &Result{Narration: cand.Narration, Delta: delta}, nil
}

// contextView is the minimal relevant state slice sent to the narrator
type contextView struct {
	Characters map[string]*game.Character `json:"characters"`
	Quests     any                        `json:"quests"`
	Containers map[string]*game.Container `json:"containers,omitempty"`
	Encounter  any                        `json:"encounter,omitempty"`
	RecentLog  []string                   `json:"recent_log,omitempty"`
}

func buildContext(s *game.State) (string, error) {
	view := contextView{
		Characters: s.Characters,
		Quests:     s.Quests,
	}
	if len(s.Containers) > 0 {
		view.Containers = s.Containers
	}
	if s.Encounter != nil {
		view.Encounter = s.Encounter
	}
	if n := len(s.Log); n > 0 {
		start := n - 10
		if start < 0 {
			start = 0
		}
		view.RecentLog = s.Log[start:]
	}

	data, err := json.Marshal(view)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
