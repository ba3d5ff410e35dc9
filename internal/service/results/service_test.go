package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"interviewprep/internal/apperr"
	"interviewprep/internal/auth"
	"interviewprep/internal/config"
	"interviewprep/internal/feed"
	"interviewprep/internal/models"
	"interviewprep/internal/redis"
	"interviewprep/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveWithoutIdentityWritesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db, nil, time.Minute, nil, nil)
	_, err = svc.Save(context.Background(), models.AnalysisResult{SessionID: "s", UserID: 5})
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	_, err = svc.SaveInterviewQuestionsData(context.Background(), "a", []models.QuestionRecord{{QuestionText: "q"}})
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	// any INSERT would have been an unexpected call
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStampsIdentityAndPersistsScore(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)
	insertUser(t, db, 2)

	svc := NewService(db, nil, time.Minute, nil, nil)
	ctx := auth.WithUser(context.Background(), 1)

	stored, err := svc.Save(ctx, models.AnalysisResult{
		UserID:        2, // never trusted
		SessionID:     "sess-1",
		InterviewType: "behavioral",
		Scores:        models.Scores{Overall: 82, Communication: 75, Technical: 88, Confidence: 70, ProblemSolving: 80},
		Strengths:     []string{"structured answers"},
		Feedback:      "solid",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, int64(1), stored.UserID)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := svc.Get(context.Background(), 1, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, 82, got.Scores.Overall)
	assert.Equal(t, []string{"structured answers"}, got.Strengths)
	assert.Equal(t, []string{}, got.Improvements)

	_, err = svc.Get(context.Background(), 2, stored.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReanalysisInsertsNewRow(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	svc := NewService(db, nil, time.Minute, nil, nil)
	ctx := auth.WithUser(context.Background(), 1)
	first, err := svc.Save(ctx, models.AnalysisResult{SessionID: "sess-1"})
	require.NoError(t, err)
	second, err := svc.Save(ctx, models.AnalysisResult{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestQuestionOrderIsContiguousFromOne(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	svc := NewService(db, nil, time.Minute, nil, nil)
	ctx := auth.WithUser(context.Background(), 1)
	stored, err := svc.Save(ctx, models.AnalysisResult{SessionID: "sess-1"})
	require.NoError(t, err)

	in := make([]models.QuestionRecord, 5)
	for i := range in {
		in[i] = models.QuestionRecord{QuestionText: "question " + strconv.Itoa(i), QuestionOrder: 99}
	}
	saved, err := svc.SaveInterviewQuestionsData(ctx, stored.ID, in)
	require.NoError(t, err)
	require.Len(t, saved, 5)

	got, err := svc.Questions(ctx, 1, stored.ID)
	require.NoError(t, err)
	orders := make([]int, 0, len(got))
	for i, q := range got {
		orders = append(orders, q.QuestionOrder)
		assert.Equal(t, "question "+strconv.Itoa(i), q.QuestionText)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, orders)
}

func TestQuestionsRejectForeignAnalysis(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)
	insertUser(t, db, 2)

	svc := NewService(db, nil, time.Minute, nil, nil)
	stored, err := svc.Save(auth.WithUser(context.Background(), 1), models.AnalysisResult{SessionID: "s"})
	require.NoError(t, err)

	_, err = svc.SaveInterviewQuestionsData(auth.WithUser(context.Background(), 2), stored.ID,
		[]models.QuestionRecord{{QuestionText: "q"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAnalysisWithRecording(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	svc := NewService(db, nil, time.Minute, nil, nil)
	ctx := auth.WithUser(context.Background(), 1)
	stored, err := svc.Save(ctx, models.AnalysisResult{SessionID: "s"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateAnalysisWithRecording(ctx, stored.ID, "https://signed", "1/a-1.webm"))
	path, err := svc.RecordingPath(ctx, 1, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "1/a-1.webm", path)

	assert.ErrorIs(t, svc.UpdateAnalysisWithRecording(ctx, "missing", "u", "p"), ErrNotFound)
	assert.ErrorIs(t, svc.UpdateAnalysisWithRecording(context.Background(), stored.ID, "u", "p"), apperr.ErrAuthRequired)
}

func TestSavePublishesInsertEvents(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	hub := feed.NewHub()
	defer hub.Close()
	sub, err := hub.Subscribe(context.Background(), feed.Filter{UserID: 1, Type: feed.EventInsert})
	require.NoError(t, err)
	defer sub.Close()

	svc := NewService(db, nil, time.Minute, hub, nil)
	ctx := auth.WithUser(context.Background(), 1)
	stored, err := svc.Save(ctx, models.AnalysisResult{SessionID: "s"})
	require.NoError(t, err)
	_, err = svc.SaveInterviewQuestionsData(ctx, stored.ID, []models.QuestionRecord{{QuestionText: "q"}})
	require.NoError(t, err)

	var tables []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events():
			tables = append(tables, ev.Table)
			assert.Equal(t, stored.ID, ev.RowID)
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
	assert.Equal(t, []string{feed.TableAnalyses, feed.TableQuestions}, tables)
}

func TestListServedFromCache(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cached := []models.AnalysisResult{{ID: "a1", UserID: 3, SessionID: "s1", Scores: models.Scores{Overall: 64}}}
	payload, err := json.Marshal(cached)
	require.NoError(t, err)

	raw, cacheMock := redismock.NewClientMock()
	cacheMock.ExpectGet(listCacheKey(3)).SetVal(string(payload))

	svc := NewService(db, redis.NewFromRaw(raw), time.Minute, nil, nil)
	list, err := svc.List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 64, list[0].Scores.Overall)

	assert.NoError(t, cacheMock.ExpectationsWereMet())
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestInsertEventInvalidatesCachedList(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	raw, cacheMock := redismock.NewClientMock()
	cacheMock.ExpectDel(listCacheKey(3)).SetVal(1)

	svc := NewService(db, redis.NewFromRaw(raw), time.Minute, nil, nil)
	svc.OnEvent(feed.Event{Table: feed.TableQuestions, Type: feed.EventInsert, UserID: 3})
	svc.OnEvent(feed.Event{Table: feed.TableAnalyses, Type: feed.EventInsert, UserID: 3})

	assert.NoError(t, cacheMock.ExpectationsWereMet())
}

func TestSaveDropsCachedListBeforeReturning(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlMock.ExpectExec("INSERT INTO interview_analyses").WillReturnResult(sqlmock.NewResult(1, 1))

	raw, cacheMock := redismock.NewClientMock()
	cacheMock.ExpectDel(listCacheKey(3)).SetVal(1)

	// no feed observer wired
	svc := NewService(db, redis.NewFromRaw(raw), time.Minute, nil, nil)
	_, err = svc.Save(auth.WithUser(context.Background(), 3), models.AnalysisResult{SessionID: "s"})
	require.NoError(t, err)

	assert.NoError(t, cacheMock.ExpectationsWereMet())
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestListReadRacingInsertIsNotLeftCached(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlMock.ExpectQuery("FROM interview_analyses WHERE user_id").
		WithArgs(int64(3)).
		WillDelayFor(300 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "session_id", "interview_type",
			"overall_score", "communication_score", "technical_score", "confidence_score", "problem_solving_score",
			"strengths", "improvements", "feedback", "duration_seconds", "recording_url", "recording_path",
			"created_at", "updated_at",
		}))

	raw, cacheMock := redismock.NewClientMock()
	cacheMock.ExpectGet(listCacheKey(3)).RedisNil()
	cacheMock.ExpectDel(listCacheKey(3)).SetVal(0)
	cacheMock.ExpectSet(listCacheKey(3), "[]", time.Minute).SetVal("OK")
	cacheMock.ExpectDel(listCacheKey(3)).SetVal(1)

	svc := NewService(db, redis.NewFromRaw(raw), time.Minute, nil, nil)
	done := make(chan error, 1)
	go func() {
		_, err := svc.List(context.Background(), 3)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	svc.OnEvent(feed.Event{Table: feed.TableAnalyses, Type: feed.EventInsert, UserID: 3})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("list did not return")
	}
	assert.NoError(t, cacheMock.ExpectationsWereMet())
	assert.NoError(t, sqlMock.ExpectationsWereMet())
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
