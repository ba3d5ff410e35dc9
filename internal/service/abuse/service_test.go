package abuse

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"interviewprep/internal/apperr"
	"interviewprep/internal/config"
	"interviewprep/internal/models"
	"interviewprep/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdsNextNeverSkipsWarned(t *testing.T) {
	th := Thresholds{Warn: 3, Suspend: 5}
	assert.Equal(t, models.AbuseNormal, th.Next(models.AbuseNormal, 2))
	assert.Equal(t, models.AbuseWarned, th.Next(models.AbuseNormal, 3))
	// even far past the suspend threshold, Normal only moves to Warned
	assert.Equal(t, models.AbuseWarned, th.Next(models.AbuseNormal, 9))
	assert.Equal(t, models.AbuseWarned, th.Next(models.AbuseWarned, 4))
	assert.Equal(t, models.AbuseSuspended, th.Next(models.AbuseWarned, 5))
	assert.Equal(t, models.AbuseSuspended, th.Next(models.AbuseSuspended, 0))
}

func TestThresholdsNormalizeInvertedConfig(t *testing.T) {
	th := Thresholds{Warn: 4, Suspend: 2}.normalized()
	assert.Equal(t, 4, th.Warn)
	assert.Greater(t, th.Suspend, th.Warn)
}

func TestEscalationScenarioSuspendsAfterFiveExits(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	notifier := &recordingNotifier{}
	svc := NewService(db, "sqlite3", Thresholds{Warn: 3, Suspend: 5}, notifier, nil)
	ctx := context.Background()

	var st models.AbuseState
	var err error
	for i := 0; i < 3; i++ {
		st, err = svc.RecordEarlyExit(ctx, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, models.AbuseWarned, st.Level)
	assert.Equal(t, 3, st.EarlyExitCount)
	assert.NotNil(t, st.WarnedAt)
	require.NoError(t, svc.Check(ctx, 1))

	st, err = svc.Acknowledge(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, st.AcknowledgedAt)
	assert.Equal(t, 3, st.EarlyExitCount, "acknowledgment does not reduce the counter")

	for i := 0; i < 2; i++ {
		st, err = svc.RecordEarlyExit(ctx, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, models.AbuseSuspended, st.Level)
	assert.NotNil(t, st.SuspendedAt)
	assert.True(t, errors.Is(svc.Check(ctx, 1), apperr.ErrAccountSuspended))
	assert.Equal(t, 1, notifier.count())

	// further exits keep the state terminal and do not re-notify
	st, err = svc.RecordEarlyExit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.AbuseSuspended, st.Level)
	assert.Equal(t, 1, notifier.count())
}

func TestLevelsAreMonotonicUnderConcurrentExits(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 2)

	svc := NewService(db, "sqlite3", Thresholds{Warn: 3, Suspend: 5}, nil, nil)
	ctx := context.Background()

	const n = 12
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		states []models.AbuseState
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := svc.RecordEarlyExit(ctx, 2)
			if err != nil {
				t.Errorf("RecordEarlyExit: %v", err)
				return
			}
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		}()
	}
	wg.Wait()

	final, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, n, final.EarlyExitCount, "no lost increments")
	assert.Equal(t, models.AbuseSuspended, final.Level)

	// ordered by counter, ranks never go backwards
	byCount := make(map[int]models.AbuseLevel, len(states))
	for _, st := range states {
		byCount[st.EarlyExitCount] = st.Level
	}
	require.Len(t, byCount, n)
	prevRank := 0
	for c := 1; c <= n; c++ {
		rank := byCount[c].Rank()
		assert.GreaterOrEqual(t, rank, prevRank, "count %d", c)
		prevRank = rank
	}
}

func TestResetIsTheOnlyWayBack(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 3)

	svc := NewService(db, "sqlite3", Thresholds{Warn: 1, Suspend: 2}, nil, nil)
	ctx := context.Background()
	_, err := svc.RecordEarlyExit(ctx, 3)
	require.NoError(t, err)
	st, err := svc.RecordEarlyExit(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, models.AbuseSuspended, st.Level)

	st, err = svc.Reset(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.AbuseNormal, st.Level)
	assert.Zero(t, st.EarlyExitCount)
	assert.Nil(t, st.SuspendedAt)
	assert.NoError(t, svc.Check(ctx, 3))
}

func TestGetUnknownUserIsNormal(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, "sqlite3", DefaultThresholds, nil, nil)
	st, err := svc.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, models.AbuseNormal, st.Level)
	assert.Zero(t, st.EarlyExitCount)

	_, err = svc.RecordEarlyExit(context.Background(), 0)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.AbuseState
}

func (r *recordingNotifier) NotifySuspended(_ context.Context, st models.AbuseState) error {
	r.mu.Lock()
	r.calls = append(r.calls, st)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func insertUser(t *testing.T, db *sql.DB, id int64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, '', ?)`,
		id, "user_"+strconv.FormatInt(id, 10), time.Now().UTC())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}
