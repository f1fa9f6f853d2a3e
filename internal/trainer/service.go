// Package trainer is the mutation layer of the vocabulary trainer. Every
// change to a word is persisted first and then reflected in its reminder.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/wordforge/internal/clock"
	"github.com/example/wordforge/internal/database"
	"github.com/example/wordforge/internal/spaced_repetition"
	"github.com/example/wordforge/pkg/models"
)

// ErrEmptyTerm is returned when adding a word without a term
var ErrEmptyTerm = errors.New("term is empty")

// WordStore persists words
type WordStore interface {
	GetByID(ctx context.Context, id string) (*models.Word, error)
	List(ctx context.Context) ([]models.Word, error)
	Save(ctx context.Context, word *models.Word) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// Reminders schedules the per-word reminder
type Reminders interface {
	Schedule(ctx context.Context, key, displayText string, fireAt time.Time) (models.ScheduledJob, error)
	Cancel(ctx context.Context, key string) error
	CancelAll(ctx context.Context) error
}

// CatchUp keeps the daily digest scheduled
type CatchUp interface {
	EnsureScheduled(ctx context.Context) (bool, error)
}

// Service applies user actions to words and keeps reminders in sync
type Service struct {
	words     WordStore
	reminders Reminders
	catchUp   CatchUp
	clock     clock.Clock
	logger    *slog.Logger

	mu sync.Mutex
}

// New creates the trainer service
func New(words WordStore, reminders Reminders, catchUp CatchUp, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		words:     words,
		reminders: reminders,
		catchUp:   catchUp,
		clock:     clk,
		logger:    logger.With("component", "trainer"),
	}
}

// AddItem creates a word at tier 0 and schedules its first reminder.
// If the reminder cannot be scheduled the saved word is returned with the error.
func (s *Service) AddItem(ctx context.Context, term, definition string) (*models.Word, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptyTerm
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	word := &models.Word{
		ID:         uuid.NewString(),
		Term:       term,
		Definition: strings.TrimSpace(definition),
		Tier:       spaced_repetition.MinTier,
		DueAt:      spaced_repetition.NextDue(spaced_repetition.MinTier, now),
		CreatedAt:  now,
	}
	if err := s.words.Save(ctx, word); err != nil {
		return nil, fmt.Errorf("failed to save word: %w", err)
	}
	s.logger.Info("word added", "id", word.ID, "term", word.Term, "due_at", word.DueAt)

	return word, s.reschedule(ctx, word)
}

// RecordAnswer moves the word one tier up or down and reschedules it.
// An unknown id is a no-op: (nil, nil).
func (s *Service) RecordAnswer(ctx context.Context, id string, outcome spaced_repetition.Outcome) (*models.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	word, err := s.words.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		s.logger.Warn("answer for unknown word ignored", "id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load word: %w", err)
	}

	now := s.clock.Now()
	previous := word.Tier
	word.Tier = spaced_repetition.Transition(word.Tier, outcome)
	if outcome == spaced_repetition.Correct {
		word.CorrectCount++
	} else {
		word.IncorrectCount++
	}
	word.LastAnsweredAt = &now
	word.DueAt = spaced_repetition.NextDue(word.Tier, now)

	if err := s.words.Save(ctx, word); err != nil {
		return nil, fmt.Errorf("failed to save word: %w", err)
	}
	s.logger.Info("answer recorded",
		"id", word.ID,
		"outcome", outcome.String(),
		"tier_from", previous,
		"tier_to", word.Tier,
		"due_at", word.DueAt)

	return word, s.reschedule(ctx, word)
}

func (s *Service) reschedule(ctx context.Context, word *models.Word) error {
	if _, err := s.reminders.Schedule(ctx, word.ID, word.Term, word.DueAt); err != nil {
		s.logger.Error("failed to schedule reminder", "id", word.ID, "error", err)
		return fmt.Errorf("word %s saved but reminder not scheduled: %w", word.ID, err)
	}
	return nil
}

// DeleteItem cancels the word's reminder and then removes the word.
// A word that is already gone still has its reminder cancelled. If the
// cancel fails the word is kept, so no reminder outlives its word.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reminders.Cancel(ctx, id); err != nil {
		return fmt.Errorf("failed to cancel reminder: %w", err)
	}

	err := s.words.Delete(ctx, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.logger.Warn("deleting unknown word", "id", id)
	case err != nil:
		return fmt.Errorf("failed to delete word: %w", err)
	}
	s.logger.Info("word deleted", "id", id)
	return nil
}

// DeleteAllItems cancels every job, removes every word, then re-creates the
// daily catch-up anchored to the current time. Jobs go first so a failure
// never leaves reminders for deleted words. The steps are not atomic; a
// crash before the catch-up is re-created is healed by
// EnsureCatchUpScheduled at the next start.
func (s *Service) DeleteAllItems(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reminders.CancelAll(ctx); err != nil {
		return fmt.Errorf("failed to cancel reminders: %w", err)
	}
	if err := s.words.DeleteAll(ctx); err != nil {
		// Words without reminders are still covered by the catch-up.
		if _, ensureErr := s.ensureCatchUp(ctx); ensureErr != nil {
			s.logger.Error("failed to restore daily catch-up", "error", ensureErr)
		}
		return fmt.Errorf("failed to delete words: %w", err)
	}
	s.logger.Info("all words deleted")

	_, err := s.ensureCatchUp(ctx)
	return err
}

// EnsureCatchUpScheduled makes sure the daily digest job is pending
func (s *Service) EnsureCatchUpScheduled(ctx context.Context) (bool, error) {
	return s.ensureCatchUp(ctx)
}

func (s *Service) ensureCatchUp(ctx context.Context) (bool, error) {
	created, err := s.catchUp.EnsureScheduled(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to schedule daily catch-up: %w", err)
	}
	return created, nil
}

// GetItem returns a word by id
func (s *Service) GetItem(ctx context.Context, id string) (*models.Word, error) {
	return s.words.GetByID(ctx, id)
}

// ListItems returns all words, soonest due first
func (s *Service) ListItems(ctx context.Context) ([]models.Word, error) {
	return s.words.List(ctx)
}
