// Package persistence implements the activity and profile data access layer.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/fitlog/internal/domain"
	"example.com/fitlog/internal/observability"
	"example.com/fitlog/internal/store"
)

// SeedUserID owns the row inserted by Seed.
const SeedUserID = "33445566"

type activityRow struct {
	RowID    int64   `db:"rowIdNum"`
	Activity string  `db:"activity"`
	Date     int64   `db:"date"`
	Amount   float64 `db:"amount"`
	UserID   string  `db:"userid"`
}

func (r activityRow) toDomain() domain.Activity {
	return domain.Activity{ID: r.RowID, Type: r.Activity, Date: r.Date, Amount: r.Amount, UserID: r.UserID}
}

// plannedRow matches the aggregate projection of the planned lookup; every
// column is NULL when nothing matched.
type plannedRow struct {
	RowID    sql.NullInt64   `db:"rowIdNum"`
	Activity sql.NullString  `db:"activity"`
	Date     sql.NullInt64   `db:"MAX(date)"`
	Amount   sql.NullFloat64 `db:"amount"`
}

type recentRow struct {
	RowID    sql.NullInt64   `db:"MAX(rowIdNum)"`
	Activity sql.NullString  `db:"activity"`
	Date     sql.NullInt64   `db:"date"`
	Amount   sql.NullFloat64 `db:"amount"`
}

type profileRow struct {
	RowID     int64  `db:"rowIdNum"`
	UserID    string `db:"userid"`
	FirstName string `db:"firstName"`
}

func (r profileRow) toDomain() domain.Profile {
	return domain.Profile{ID: r.RowID, UserID: r.UserID, FirstName: r.FirstName}
}

// Repository provides access to ActivityTable and Profile.
type Repository struct {
	db     *store.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewRepository constructs a Repository over an open database.
func NewRepository(db *store.DB) *Repository {
	return &Repository{
		db:     db,
		logger: log.With().Str("component", "persistence").Logger(),
		now:    time.Now,
	}
}

// PostActivity inserts one activity row and returns its row id.
func (r *Repository) PostActivity(ctx context.Context, in domain.ActivityInput, userID string) (id int64, err error) {
	defer r.observe("post_activity", time.Now(), &err)

	id, err = insertActivity(ctx, r.db.Executor(), in, userID)
	if err != nil {
		return 0, err
	}
	observability.RecordActivityPersisted(r.now())
	return id, nil
}

// NewUser returns the row id of the (userID, name) profile, inserting it when absent.
// The insert is conflict-tolerant so concurrent callers converge on one row.
func (r *Repository) NewUser(ctx context.Context, userID, name string) (id int64, err error) {
	defer r.observe("new_user", time.Now(), &err)

	ex := r.db.Executor()
	stmts := ex.Statements()

	var row profileRow
	err = ex.Get(ctx, &row, stmts.ProfileByUserAndName, userID, name)
	if err == nil {
		return row.RowID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	if _, err = ex.Run(ctx, stmts.InsertProfileIfAbsent, userID, name); err != nil {
		return 0, err
	}
	if err = ex.Get(ctx, &row, stmts.ProfileByUserAndName, userID, name); err != nil {
		return 0, err
	}
	return row.RowID, nil
}

// GetInfo returns the profile stored under row.
func (r *Repository) GetInfo(ctx context.Context, row int64) (profile *domain.Profile, err error) {
	defer r.observe("get_info", time.Now(), &err)

	var pr profileRow
	if err = r.getOne(ctx, &pr, domain.ErrProfileNotFound, r.db.Executor().Statements().ProfileByRow, row); err != nil {
		return nil, err
	}
	p := pr.toDomain()
	return &p, nil
}

// GetName returns the display name stored for (userID, username).
func (r *Repository) GetName(ctx context.Context, userID, username string) (name string, err error) {
	defer r.observe("get_name", time.Now(), &err)

	var pr profileRow
	if err = r.getOne(ctx, &pr, domain.ErrProfileNotFound, r.db.Executor().Statements().ProfileByUserAndName, userID, username); err != nil {
		return "", err
	}
	return pr.FirstName, nil
}

// ProfilesByName lists profiles with the given display name.
func (r *Repository) ProfilesByName(ctx context.Context, name string) (profiles []domain.Profile, err error) {
	defer r.observe("profiles_by_name", time.Now(), &err)
	return r.profiles(ctx, r.db.Executor().Statements().ProfilesByName, name)
}

// ProfilesByUser lists profiles registered under userID.
func (r *Repository) ProfilesByUser(ctx context.Context, userID string) (profiles []domain.Profile, err error) {
	defer r.observe("profiles_by_user", time.Now(), &err)
	return r.profiles(ctx, r.db.Executor().Statements().ProfilesByUser, userID)
}

// MostRecentPlannedInRange returns the planned activity (amount <= 0) with the
// latest date in [min, max].
func (r *Repository) MostRecentPlannedInRange(ctx context.Context, min, max int64, userID string) (activity *domain.Activity, err error) {
	defer r.observe("most_recent_planned_in_range", time.Now(), &err)

	var row plannedRow
	if err = r.getOne(ctx, &row, domain.ErrActivityNotFound, r.db.Executor().Statements().MostRecentPlanned, userID, min, max); err != nil {
		return nil, err
	}
	if !row.RowID.Valid {
		err = domain.ErrActivityNotFound
		return nil, err
	}
	return &domain.Activity{
		ID:     row.RowID.Int64,
		Type:   row.Activity.String,
		Date:   row.Date.Int64,
		Amount: row.Amount.Float64,
		UserID: userID,
	}, nil
}

// MostRecentEntry returns the user's activity with the highest row id.
func (r *Repository) MostRecentEntry(ctx context.Context, userID string) (activity *domain.Activity, err error) {
	defer r.observe("most_recent_entry", time.Now(), &err)

	var row recentRow
	if err = r.getOne(ctx, &row, domain.ErrActivityNotFound, r.db.Executor().Statements().MostRecentEntry, userID); err != nil {
		return nil, err
	}
	if !row.RowID.Valid {
		err = domain.ErrActivityNotFound
		return nil, err
	}
	return &domain.Activity{
		ID:     row.RowID.Int64,
		Type:   row.Activity.String,
		Date:   row.Date.Int64,
		Amount: row.Amount.Float64,
		UserID: userID,
	}, nil
}

// FindActivity returns the first row matching type, exact date and user.
func (r *Repository) FindActivity(ctx context.Context, activityType string, date int64, userID string) (activity *domain.Activity, err error) {
	defer r.observe("find_activity", time.Now(), &err)

	var row activityRow
	if err = r.getOne(ctx, &row, domain.ErrActivityNotFound, r.db.Executor().Statements().FindActivity, activityType, date, userID); err != nil {
		return nil, err
	}
	a := row.toDomain()
	return &a, nil
}

// ActivitiesByType lists every row of one activity type for the user.
func (r *Repository) ActivitiesByType(ctx context.Context, activityType, userID string) (activities []domain.Activity, err error) {
	defer r.observe("activities_by_type", time.Now(), &err)
	return r.activities(ctx, r.db.Executor().Statements().ActivitiesByType, activityType, userID)
}

// SimilarActivitiesInRange lists rows of activityType with date in [min, max],
// ordered by ascending date. The slice is never nil.
func (r *Repository) SimilarActivitiesInRange(ctx context.Context, activityType string, min, max int64, userID string) (activities []domain.Activity, err error) {
	defer r.observe("similar_activities_in_range", time.Now(), &err)
	return r.activities(ctx, r.db.Executor().Statements().SimilarInRange, userID, activityType, min, max)
}

// DeletePastActivitiesInRange removes the user's rows with amount < 0 and date
// in [min, max]. Rows with amount == 0 are kept even though the planned lookup
// treats them as planned.
func (r *Repository) DeletePastActivitiesInRange(ctx context.Context, min, max int64, userID string) (deleted int64, err error) {
	defer r.observe("delete_past_activities_in_range", time.Now(), &err)
	return deletePlanned(ctx, r.db.Executor(), min, max, userID)
}

// ReplacePlannedInRange deletes planned rows in [min, max] and inserts in
// within one transaction. It returns the new row id and the number of rows removed.
func (r *Repository) ReplacePlannedInRange(ctx context.Context, min, max int64, userID string, in domain.ActivityInput) (id, deleted int64, err error) {
	defer r.observe("replace_planned_in_range", time.Now(), &err)

	err = r.db.Transaction(ctx, func(ex *store.Executor) error {
		var txErr error
		if deleted, txErr = deletePlanned(ctx, ex, min, max, userID); txErr != nil {
			return txErr
		}
		id, txErr = insertActivity(ctx, ex, in, userID)
		return txErr
	})
	if err != nil {
		return 0, 0, err
	}
	observability.RecordActivityPersisted(r.now())
	return id, deleted, nil
}

// All dumps ActivityTable. The slice is never nil.
func (r *Repository) All(ctx context.Context) (activities []domain.Activity, err error) {
	defer r.observe("get_all", time.Now(), &err)
	return r.activities(ctx, r.db.Executor().Statements().AllActivities)
}

// Seed inserts one completed run for today, owned by SeedUserID.
func (r *Repository) Seed(ctx context.Context, now time.Time) (err error) {
	defer r.observe("seed", time.Now(), &err)

	_, err = insertActivity(ctx, r.db.Executor(), domain.ActivityInput{
		Activity: "Run",
		Date:     domain.LocalDay(now),
		Scalar:   9,
	}, SeedUserID)
	return err
}

func insertActivity(ctx context.Context, ex *store.Executor, in domain.ActivityInput, userID string) (int64, error) {
	args := []any{in.Activity, in.Date, in.Scalar, userID}
	if ex.Dialect().InsertReturnsID {
		var id int64
		if err := ex.Get(ctx, &id, ex.Statements().InsertActivity, args...); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := ex.Run(ctx, ex.Statements().InsertActivity, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &store.QueryError{Query: ex.Statements().InsertActivity, Err: err}
	}
	return id, nil
}

func deletePlanned(ctx context.Context, ex *store.Executor, min, max int64, userID string) (int64, error) {
	res, err := ex.Run(ctx, ex.Statements().DeletePlannedInRange, userID, min, max)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &store.QueryError{Query: ex.Statements().DeletePlannedInRange, Err: err}
	}
	return n, nil
}

// getOne scans a single row, mapping sql.ErrNoRows to notFound.
func (r *Repository) getOne(ctx context.Context, dest any, notFound error, query string, args ...any) error {
	err := r.db.Executor().Get(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

func (r *Repository) activities(ctx context.Context, query string, args ...any) ([]domain.Activity, error) {
	var rows []activityRow
	if err := r.db.Executor().All(ctx, &rows, query, args...); err != nil {
		return []domain.Activity{}, err
	}
	out := make([]domain.Activity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *Repository) profiles(ctx context.Context, query string, args ...any) ([]domain.Profile, error) {
	var rows []profileRow
	if err := r.db.Executor().All(ctx, &rows, query, args...); err != nil {
		return []domain.Profile{}, err
	}
	out := make([]domain.Profile, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// observe tags query failures with op, logs them and records the outcome.
func (r *Repository) observe(op string, start time.Time, errp *error) {
	err := *errp
	outcome := observability.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		outcome = observability.OutcomeNotFound
	default:
		outcome = observability.OutcomeError
		var qe *store.QueryError
		if errors.As(err, &qe) && qe.Op == "" {
			qe.Op = op
		}
		r.logger.Error().Err(err).Str("op", op).Msg("Data access operation failed")
	}
	observability.RecordQuery(op, outcome, time.Since(start))
}
