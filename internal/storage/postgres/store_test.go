package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"corebridge/process-service/internal/idgen"
	"corebridge/process-service/internal/process"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in -short mode")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("process"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	store := New(pool)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations are idempotent")

	ids, err := idgen.NewSnowflake(2)
	require.NoError(t, err)
	svc := process.NewService(store, ids)
	agg := process.NewAggregator(store)

	t.Run("create and duplicate", func(t *testing.T) {
		inst, err := svc.CreateProcess(ctx, 10, 100, 1000)
		require.NoError(t, err)
		assert.Equal(t, process.StageApplied, inst.CurrentStage)

		_, err = svc.CreateProcess(ctx, 10, 100, 1000)
		assert.ErrorIs(t, err, process.ErrDuplicateApplication)

		hist, err := store.HistoryByApplication(ctx, 10)
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.Nil(t, hist[0].FromStage)

		// Reusing the process id for another application is an id fault.
		err = store.CreateInstance(ctx, process.NewInstance(inst.ID, 11, 100, 1000, inst.CreatedAt),
			&process.HistoryEntry{ID: 1, ProcessID: inst.ID, ApplicationID: 11, ToStage: process.StageApplied, CreatedAt: inst.CreatedAt})
		assert.ErrorIs(t, err, process.ErrPersistence)
		assert.NotErrorIs(t, err, process.ErrDuplicateApplication)
	})

	t.Run("transition round trip", func(t *testing.T) {
		inst, err := svc.CreateProcess(ctx, 20, 100, 1001)
		require.NoError(t, err)

		actor := int64(9)
		moved, err := svc.Transition(ctx, inst.ID, process.TransitionRequest{
			To: process.StageDocumentReview, ActorID: &actor, Reason: "screening",
		})
		require.NoError(t, err)

		got, err := store.GetInstance(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, process.StageDocumentReview, got.CurrentStage)
		require.NotNil(t, got.PreviousStage)
		assert.Equal(t, process.StageApplied, *got.PreviousStage)
		assert.True(t, got.StageChangedAt.Equal(moved.StageChangedAt))

		hist, err := store.History(ctx, inst.ID)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		require.NotNil(t, hist[0].ActorID)
		assert.Equal(t, actor, *hist[0].ActorID)

		stage, err := process.Replay(hist)
		require.NoError(t, err)
		assert.Equal(t, got.CurrentStage, stage)
	})

	t.Run("concurrent transitions", func(t *testing.T) {
		inst, err := svc.CreateProcess(ctx, 30, 100, 1002)
		require.NoError(t, err)
		_, err = svc.Transition(ctx, inst.ID, process.TransitionRequest{To: process.StageDocumentReview})
		require.NoError(t, err)

		targets := []process.Stage{process.StageDocumentPass, process.StageDocumentFail}
		errs := make([]error, len(targets))
		var wg sync.WaitGroup
		for i, to := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = svc.Transition(ctx, inst.ID, process.TransitionRequest{To: to})
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			var ite *process.IllegalTransitionError
			assert.ErrorAs(t, err, &ite)
		}
		assert.Equal(t, 1, wins)

		hist, err := store.History(ctx, inst.ID)
		require.NoError(t, err)
		assert.Len(t, hist, 3)
	})

	t.Run("history is append-only", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE process_history SET reason = 'edited'`)
		assert.Error(t, err)
		_, err = pool.Exec(ctx, `DELETE FROM process_history`)
		assert.Error(t, err)
	})

	t.Run("withdraw", func(t *testing.T) {
		require.NoError(t, svc.Withdraw(ctx, 10))
		assert.ErrorIs(t, svc.Withdraw(ctx, 10), process.ErrInstanceNotFound)
		assert.ErrorIs(t, svc.Withdraw(ctx, 20), process.ErrNotWithdrawable)

		hist, err := store.HistoryByApplication(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, hist, 1)

		again, err := svc.CreateProcess(ctx, 10, 300, 1003)
		require.NoError(t, err)
		_, err = svc.Transition(ctx, again.ID, process.TransitionRequest{To: process.StageDocumentReview})
		require.NoError(t, err)

		hist, err = store.HistoryByApplication(ctx, 10)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, again.ID, hist[1].ProcessID)
		stage, err := process.Replay(hist)
		require.NoError(t, err)
		assert.Equal(t, process.StageDocumentReview, stage)
	})

	t.Run("listings and counts", func(t *testing.T) {
		review := process.StageDocumentReview
		list, err := store.ListByPosting(ctx, 100, &review)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, int64(20), list[0].ApplicationID)

		all, err := store.ListByPosting(ctx, 100, nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		byApplicant, err := store.ListByApplicant(ctx, 1002)
		require.NoError(t, err)
		assert.Len(t, byApplicant, 1)

		stale, err := store.ListStale(ctx, process.StageDocumentReview, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, stale, 2, "application 20 and the re-created application 10")
		n, err := store.CountStale(ctx, process.StageDocumentReview, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		st, err := agg.PostingSetStats(ctx, []int64{100, 200})
		require.NoError(t, err)
		assert.Equal(t, int64(2), st.Total)
		assert.Equal(t, int64(1), st.Pending)
		assert.Equal(t, int64(1), st.Passed+st.Failed+st.Interviewing)

		empty, err := store.CountByStage(ctx, process.CountFilter{PostingIDs: []int64{999}})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestDirectory(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `CREATE TABLE apply (
		apply_id      BIGINT PRIMARY KEY,
		jobposting_id BIGINT NOT NULL,
		user_id       BIGINT NOT NULL
	); INSERT INTO apply VALUES (10, 100, 1000);`)
	require.NoError(t, err)

	dir := NewDirectory(pool)
	postingID, applicantID, err := dir.LookupApplication(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(100), postingID)
	assert.Equal(t, int64(1000), applicantID)

	_, _, err = dir.LookupApplication(ctx, 11)
	assert.ErrorIs(t, err, process.ErrApplicationNotFound)
}
