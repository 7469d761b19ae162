// Package domain defines the activity log types and the workflows built on the store.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/fitlog/internal/events"
)

var (
	// ErrNotFound is the base error for lookups that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrActivityNotFound is returned when no activity row matches a query.
	ErrActivityNotFound = fmt.Errorf("activity %w", ErrNotFound)
	// ErrProfileNotFound is returned when no profile row matches a query.
	ErrProfileNotFound = fmt.Errorf("profile %w", ErrNotFound)
	// ErrInvalidActivity indicates the activity payload failed validation.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrInvalidRange indicates min is after max.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrMissingUser indicates an empty user id.
	ErrMissingUser = errors.New("user id is required")
	// ErrMissingName indicates an empty profile display name.
	ErrMissingName = errors.New("name is required")
)

// ActivityRepository captures persistence operations used by the service.
type ActivityRepository interface {
	PostActivity(ctx context.Context, in ActivityInput, userID string) (int64, error)
	NewUser(ctx context.Context, userID, name string) (int64, error)
	MostRecentEntry(ctx context.Context, userID string) (*Activity, error)
	MostRecentPlannedInRange(ctx context.Context, min, max int64, userID string) (*Activity, error)
	SimilarActivitiesInRange(ctx context.Context, activityType string, min, max int64, userID string) ([]Activity, error)
	DeletePastActivitiesInRange(ctx context.Context, min, max int64, userID string) (int64, error)
	ReplacePlannedInRange(ctx context.Context, min, max int64, userID string, in ActivityInput) (int64, int64, error)
}

// EventPublisher delivers activity events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// Service orchestrates activity workflows.
type Service struct {
	repo      ActivityRepository
	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher sets the event publisher. Events are dropped when none is set.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLogger overrides the logger used for publish failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: log.Logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogActivity validates and records an activity as given.
func (s *Service) LogActivity(ctx context.Context, userID string, in ActivityInput) (*Activity, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	id, err := s.repo.PostActivity(ctx, in, userID)
	if err != nil {
		return nil, err
	}

	activity := &Activity{ID: id, Type: in.Activity, Date: in.Date, Amount: in.Scalar, UserID: userID}
	eventType := events.TypeActivityLogged
	if activity.Planned() {
		eventType = events.TypeActivityPlanned
	}
	s.publish(ctx, eventType, userID, events.ActivityRecorded{
		RowID:    id,
		UserID:   userID,
		Activity: in.Activity,
		Date:     in.Date,
		Amount:   in.Scalar,
	})
	return activity, nil
}

// PlanActivity records a planned activity, flipping a positive scalar to its negative.
func (s *Service) PlanActivity(ctx context.Context, userID string, in ActivityInput) (*Activity, error) {
	if in.Scalar > 0 {
		in.Scalar = -in.Scalar
	}
	return s.LogActivity(ctx, userID, in)
}

// CompletePlanned replaces the planned rows in [min, max] with a completed entry in one transaction.
func (s *Service) CompletePlanned(ctx context.Context, userID string, min, max int64, in ActivityInput) (*Activity, int64, error) {
	if err := validateUser(userID); err != nil {
		return nil, 0, err
	}
	if err := validateRange(min, max); err != nil {
		return nil, 0, err
	}
	if err := in.Validate(); err != nil {
		return nil, 0, err
	}
	if in.Scalar <= 0 {
		return nil, 0, fmt.Errorf("%w: completed activity needs a positive scalar", ErrInvalidActivity)
	}

	id, deleted, err := s.repo.ReplacePlannedInRange(ctx, min, max, userID, in)
	if err != nil {
		return nil, 0, err
	}

	if deleted > 0 {
		s.publish(ctx, events.TypePlansCleared, userID, events.PlansCleared{
			UserID:  userID,
			From:    min,
			To:      max,
			Removed: deleted,
		})
	}
	s.publish(ctx, events.TypeActivityLogged, userID, events.ActivityRecorded{
		RowID:    id,
		UserID:   userID,
		Activity: in.Activity,
		Date:     in.Date,
		Amount:   in.Scalar,
	})
	return &Activity{ID: id, Type: in.Activity, Date: in.Date, Amount: in.Scalar, UserID: userID}, deleted, nil
}

// ClearPlanned removes planned rows with a negative amount in [min, max].
func (s *Service) ClearPlanned(ctx context.Context, userID string, min, max int64) (int64, error) {
	if err := validateUser(userID); err != nil {
		return 0, err
	}
	if err := validateRange(min, max); err != nil {
		return 0, err
	}

	deleted, err := s.repo.DeletePastActivitiesInRange(ctx, min, max, userID)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.publish(ctx, events.TypePlansCleared, userID, events.PlansCleared{
			UserID:  userID,
			From:    min,
			To:      max,
			Removed: deleted,
		})
	}
	return deleted, nil
}

// RegisterUser returns the profile handle for (userID, name), creating it when absent.
func (s *Service) RegisterUser(ctx context.Context, userID, name string) (int64, error) {
	if err := validateUser(userID); err != nil {
		return 0, err
	}
	if strings.TrimSpace(name) == "" {
		return 0, ErrMissingName
	}
	return s.repo.NewUser(ctx, userID, name)
}

// MostRecent returns the last inserted activity for the user.
func (s *Service) MostRecent(ctx context.Context, userID string) (*Activity, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	return s.repo.MostRecentEntry(ctx, userID)
}

// PendingPlan returns the latest planned activity in [min, max].
func (s *Service) PendingPlan(ctx context.Context, userID string, min, max int64) (*Activity, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if err := validateRange(min, max); err != nil {
		return nil, err
	}
	return s.repo.MostRecentPlannedInRange(ctx, min, max, userID)
}

// History returns activities of one type in [min, max] ordered by date.
func (s *Service) History(ctx context.Context, userID, activityType string, min, max int64) ([]Activity, error) {
	if err := validateUser(userID); err != nil {
		return []Activity{}, err
	}
	if err := validateRange(min, max); err != nil {
		return []Activity{}, err
	}
	return s.repo.SimilarActivitiesInRange(ctx, activityType, min, max, userID)
}

// WeekHistory returns the seven local days ending with the day of the clock's now.
func (s *Service) WeekHistory(ctx context.Context, userID, activityType string) ([]Activity, error) {
	now := s.now()
	_, max := DayRange(now)
	min, _ := DayRange(now.AddDate(0, 0, -6))
	return s.History(ctx, userID, activityType, min, max)
}

func (s *Service) publish(ctx context.Context, eventType, key string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, key, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Str("userid", key).Msg("Failed to publish activity event")
	}
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUser
	}
	return nil
}

func validateRange(min, max int64) error {
	if min > max {
		return fmt.Errorf("%w: %d > %d", ErrInvalidRange, min, max)
	}
	return nil
}
