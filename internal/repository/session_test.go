package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/pipeline"
)

func newRepo() SessionRepository {
	return NewSessionRepository(SessionConfig{TTL: time.Minute, CleanupInterval: time.Minute}, nil)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()

	snap, err := repo.Create(ctx, constants.ModeDiabetes)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, constants.StageUpload, snap.Stage)
	assert.Equal(t, constants.ModeDiabetes, snap.Mode)

	got, err := repo.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, 1, repo.Count())
}

func TestGetUnknownSession(t *testing.T) {
	_, err := newRepo().Get(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateReturnsSnapshotEvenOnError(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	snap, err := repo.Create(ctx, constants.ModeGeneral)
	require.NoError(t, err)

	boom := errors.New("boom")
	after, err := repo.Update(ctx, snap.ID, func(s *pipeline.Session) error {
		s.ReportError("something went wrong")
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "something went wrong", after.Error)
}

func TestUpdateSerialisesMutations(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	snap, err := repo.Create(ctx, constants.ModeGeneral)
	require.NoError(t, err)

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, snap.ID, func(*pipeline.Session) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	snap, err := repo.Create(ctx, constants.ModeGeneral)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, snap.ID))
	_, err = repo.Get(ctx, snap.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, snap.ID), common.ErrNotFound)
}

func TestSessionsExpire(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(SessionConfig{TTL: 20 * time.Millisecond, CleanupInterval: time.Hour}, nil)
	snap, err := repo.Create(ctx, constants.ModeGeneral)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = repo.Get(ctx, snap.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateAfterConcurrentDeleteDoesNotRestore(t *testing.T) {
	ctx := context.Background()
	repo := newRepo().(*sessionRepository)
	snap, err := repo.Create(ctx, constants.ModeGeneral)
	require.NoError(t, err)

	// a job that looked the session up just before the delete landed
	e, err := repo.lookup(snap.ID)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, snap.ID))

	called := false
	_, err = repo.apply(snap.ID, e, func(*pipeline.Session) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.False(t, called)
	assert.Zero(t, repo.Count())
	_, err = repo.Get(ctx, snap.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateAfterExpiryDoesNotRestore(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(SessionConfig{TTL: 20 * time.Millisecond, CleanupInterval: time.Hour}, nil).(*sessionRepository)
	snap, err := repo.Create(ctx, constants.ModeGeneral)
	require.NoError(t, err)
	e, err := repo.lookup(snap.ID)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = repo.apply(snap.ID, e, func(*pipeline.Session) error { return nil })
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = repo.Get(ctx, snap.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteIsNotLoggedAsExpiry(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	repo := NewSessionRepository(SessionConfig{TTL: time.Minute}, zap.New(core))
	snap, err := repo.Create(ctx, constants.ModeGeneral)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, snap.ID))
	assert.Equal(t, 1, logs.FilterMessage("session.deleted").Len())
	assert.Zero(t, logs.FilterMessage("session.expired").Len())
}
