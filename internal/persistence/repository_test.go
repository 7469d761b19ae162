package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/fitlog/internal/domain"
	"example.com/fitlog/internal/observability"
	"example.com/fitlog/internal/store"
)

func setupRepository(t *testing.T) (*store.DB, *Repository) {
	t.Helper()

	ctx := context.Background()
	db, err := store.Open(ctx, store.Options{Driver: store.DialectSQLite, DSN: filepath.Join(t.TempDir(), "fitlog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	return db, NewRepository(db)
}

func post(t *testing.T, repo *Repository, userID, activity string, date int64, amount float64) int64 {
	t.Helper()
	id, err := repo.PostActivity(context.Background(), domain.ActivityInput{Activity: activity, Date: date, Scalar: amount}, userID)
	require.NoError(t, err)
	return id
}

func TestPostActivityThenMostRecentEntry(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	post(t, repo, "u1", "Walk", 1699900000000, 2)
	id := post(t, repo, "u1", "Bike", 1699800000000, 12.5)
	post(t, repo, "u2", "Swim", 1700000000000, 1)

	got, err := repo.MostRecentEntry(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "Bike", got.Type)
	require.Equal(t, int64(1699800000000), got.Date)
	require.InDelta(t, 12.5, got.Amount, 1e-9)
	require.Equal(t, "u1", got.UserID)
}

func TestMostRecentEntryNotFound(t *testing.T) {
	_, repo := setupRepository(t)

	got, err := repo.MostRecentEntry(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Nil(t, got)
}

func TestNewUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, repo := setupRepository(t)

	first, err := repo.NewUser(ctx, "device-1", "Ada")
	require.NoError(t, err)
	second, err := repo.NewUser(ctx, "device-1", "Ada")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := repo.NewUser(ctx, "device-1", "Grace")
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT COUNT(*) FROM Profile WHERE userid = ? AND firstname = ?", "device-1", "Ada"))
	require.Equal(t, 1, count)
}

func TestNewUserConcurrentCallsCreateOneRow(t *testing.T) {
	ctx := context.Background()
	db, repo := setupRepository(t)

	const callers = 8
	ids := make([]int64, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = repo.NewUser(ctx, "device-9", "Linus")
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT COUNT(*) FROM Profile"))
	require.Equal(t, 1, count)
}

func TestGetInfoAndGetName(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	row, err := repo.NewUser(ctx, "device-2", "Marie")
	require.NoError(t, err)

	profile, err := repo.GetInfo(ctx, row)
	require.NoError(t, err)
	require.Equal(t, domain.Profile{ID: row, UserID: "device-2", FirstName: "Marie"}, *profile)

	name, err := repo.GetName(ctx, "device-2", "Marie")
	require.NoError(t, err)
	require.Equal(t, "Marie", name)

	_, err = repo.GetInfo(ctx, row+100)
	require.ErrorIs(t, err, domain.ErrProfileNotFound)

	name, err = repo.GetName(ctx, "device-2", "Pierre")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
	require.Empty(t, name)
}

func TestProfileListings(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	_, err := repo.NewUser(ctx, "d1", "Ada")
	require.NoError(t, err)
	_, err = repo.NewUser(ctx, "d2", "Ada")
	require.NoError(t, err)
	_, err = repo.NewUser(ctx, "d1", "Alan")
	require.NoError(t, err)

	byName, err := repo.ProfilesByName(ctx, "Ada")
	require.NoError(t, err)
	require.Len(t, byName, 2)

	byUser, err := repo.ProfilesByUser(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)

	none, err := repo.ProfilesByUser(ctx, "d3")
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestSimilarActivitiesInRangeOrderingAndBounds(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	post(t, repo, "u1", "Run", 300, 3)
	post(t, repo, "u1", "Run", 100, 1) // lower bound
	post(t, repo, "u1", "Run", 500, 5) // upper bound
	post(t, repo, "u1", "Run", 99, 9)  // before range
	post(t, repo, "u1", "Run", 501, 9) // after range
	post(t, repo, "u1", "Swim", 200, 9)
	post(t, repo, "u2", "Run", 200, 9)

	got, err := repo.SimilarActivitiesInRange(ctx, "Run", 100, 500, "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	dates := []int64{got[0].Date, got[1].Date, got[2].Date}
	require.Equal(t, []int64{100, 300, 500}, dates)
	for _, a := range got {
		require.Equal(t, "Run", a.Type)
		require.Equal(t, "u1", a.UserID)
	}

	empty, err := repo.SimilarActivitiesInRange(ctx, "Row", 100, 500, "u1")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestDeletePastActivitiesKeepsZeroAmounts(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	post(t, repo, "u1", "Run", 1000, -5)
	zero := post(t, repo, "u1", "Yoga", 1000, 0)
	done := post(t, repo, "u1", "Bike", 1000, 4)
	outside := post(t, repo, "u1", "Run", 5000, -1)
	otherUser := post(t, repo, "u2", "Run", 1000, -2)

	deleted, err := repo.DeletePastActivitiesInRange(ctx, 900, 1100, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	remaining := map[int64]bool{}
	for _, a := range all {
		remaining[a.ID] = true
	}
	require.Equal(t, map[int64]bool{zero: true, done: true, outside: true, otherUser: true}, remaining)

	// The zero-amount row still counts as planned for the lookup.
	planned, err := repo.MostRecentPlannedInRange(ctx, 900, 1100, "u1")
	require.NoError(t, err)
	require.Equal(t, zero, planned.ID)
	require.True(t, planned.Planned())
}

func TestMostRecentPlannedPicksLatestDate(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	post(t, repo, "u1", "Run", 2000, -3)
	latest := post(t, repo, "u1", "Swim", 3000, -1)
	post(t, repo, "u1", "Bike", 1000, -2)
	post(t, repo, "u1", "Row", 4000, 6) // completed, ignored

	got, err := repo.MostRecentPlannedInRange(ctx, 0, 5000, "u1")
	require.NoError(t, err)
	require.Equal(t, latest, got.ID)
	require.Equal(t, "Swim", got.Type)
	require.Equal(t, int64(3000), got.Date)
	require.InDelta(t, -1, got.Amount, 1e-9)
}

func TestMostRecentPlannedNotFoundWhenOnlyCompleted(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	post(t, repo, "u1", "Run", 1000, 5)

	got, err := repo.MostRecentPlannedInRange(ctx, 0, 5000, "u1")
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
	require.Nil(t, got)
}

func TestPlannedLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	id := post(t, repo, "u1", "Run", 1700000000000, -5)

	got, err := repo.MostRecentPlannedInRange(ctx, 1699999999999, 1700000000001, "u1")
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "Run", got.Type)
	require.InDelta(t, -5, got.Amount, 1e-9)

	deleted, err := repo.DeletePastActivitiesInRange(ctx, 1699999999999, 1700000000001, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	got, err = repo.MostRecentPlannedInRange(ctx, 1699999999999, 1700000000001, "u1")
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
	require.Nil(t, got)
}

func TestAllOnEmptyTableReturnsEmptySlice(t *testing.T) {
	_, repo := setupRepository(t)

	got, err := repo.All(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestFindActivityAndActivitiesByType(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	id := post(t, repo, "u1", "Run", 1000, 5)
	post(t, repo, "u1", "Run", 2000, 6)
	post(t, repo, "u1", "Swim", 1000, 1)

	got, err := repo.FindActivity(ctx, "Run", 1000, "u1")
	require.NoError(t, err)
	require.Equal(t, id, got.ID)

	_, err = repo.FindActivity(ctx, "Run", 3000, "u1")
	require.ErrorIs(t, err, domain.ErrActivityNotFound)

	runs, err := repo.ActivitiesByType(ctx, "Run", "u1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestReplacePlannedInRange(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	post(t, repo, "u1", "Run", 1000, -5)
	post(t, repo, "u1", "Run", 1000, -2)

	id, deleted, err := repo.ReplacePlannedInRange(ctx, 0, 2000, "u1", domain.ActivityInput{Activity: "Run", Date: 1000, Scalar: 5})
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, id, all[0].ID)
	require.InDelta(t, 5, all[0].Amount, 1e-9)
}

func TestReplacePlannedInRangeRollsBackOnInsertFailure(t *testing.T) {
	ctx := context.Background()
	db, repo := setupRepository(t)

	post(t, repo, "u1", "Run", 1000, -5)

	// Reject inserts so the delete in the same transaction must be undone.
	_, err := db.ExecContext(ctx, `
		CREATE TRIGGER reject_insert BEFORE INSERT ON ActivityTable
		BEGIN SELECT RAISE(ABORT, 'inserts disabled'); END`)
	require.NoError(t, err)

	_, _, err = repo.ReplacePlannedInRange(ctx, 0, 2000, "u1", domain.ActivityInput{Activity: "Run", Date: 1000, Scalar: 5})
	require.Error(t, err)

	var qe *store.QueryError
	require.True(t, errors.As(err, &qe))
	require.Equal(t, "replace_planned_in_range", qe.Op)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.InDelta(t, -5, all[0].Amount, 1e-9)
}

func TestSeedInsertsTodayRun(t *testing.T) {
	ctx := context.Background()
	_, repo := setupRepository(t)

	now := time.Date(2026, time.March, 14, 15, 9, 26, 0, time.Local)
	require.NoError(t, repo.Seed(ctx, now))

	got, err := repo.MostRecentEntry(ctx, SeedUserID)
	require.NoError(t, err)
	require.Equal(t, "Run", got.Type)
	require.InDelta(t, 9, got.Amount, 1e-9)
	require.Equal(t, time.Date(2026, time.March, 14, 0, 0, 0, 0, time.Local).UnixMilli(), got.Date)
}

func TestFailuresAreTypedAndCounted(t *testing.T) {
	ctx := context.Background()
	db, repo := setupRepository(t)

	_, err := db.ExecContext(ctx, "DROP TABLE ActivityTable")
	require.NoError(t, err)

	before := testutil.ToFloat64(observability.QueryCount("get_all", observability.OutcomeError))

	got, err := repo.All(ctx)
	require.NotNil(t, got)
	require.Empty(t, got)

	var qe *store.QueryError
	require.True(t, errors.As(err, &qe))
	require.Equal(t, "get_all", qe.Op)
	require.False(t, errors.Is(err, domain.ErrNotFound))

	after := testutil.ToFloat64(observability.QueryCount("get_all", observability.OutcomeError))
	require.InDelta(t, before+1, after, 0.0001)

	_, err = repo.PostActivity(ctx, domain.ActivityInput{Activity: "Run", Date: 1, Scalar: 1}, "u1")
	require.True(t, errors.As(err, &qe))
	require.Equal(t, "post_activity", qe.Op)
}

func TestNotFoundOutcomeIsCounted(t *testing.T) {
	_, repo := setupRepository(t)

	before := testutil.ToFloat64(observability.QueryCount("most_recent_entry", observability.OutcomeNotFound))
	_, err := repo.MostRecentEntry(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
	after := testutil.ToFloat64(observability.QueryCount("most_recent_entry", observability.OutcomeNotFound))
	require.InDelta(t, before+1, after, 0.0001)
}
