package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (f *fakeStore) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return 2, f.err
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePruner struct{ pruned int }

func (f *fakePruner) Prune() int {
	f.pruned++
	return 1
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestResetTokenCleanupJob_Run(t *testing.T) {
	store := &fakeStore{}
	pruner := &fakePruner{}
	job := NewResetTokenCleanupJob(store, pruner, quietLogger())
	fixed := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	job.Run()

	require.Equal(t, 1, store.count())
	assert.Equal(t, fixed, store.calls[0])
	assert.Equal(t, 1, pruner.pruned)
}

func TestResetTokenCleanupJob_StoreFailureSkipsPrune(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	pruner := &fakePruner{}
	job := NewResetTokenCleanupJob(store, pruner, quietLogger())

	job.Run()

	assert.Equal(t, 1, store.count())
	assert.Zero(t, pruner.pruned)
}

func TestResetTokenCleanupJob_StartStop(t *testing.T) {
	store := &fakeStore{}
	job := NewResetTokenCleanupJob(store, nil, quietLogger())

	require.Error(t, job.Start("not a schedule"))

	require.NoError(t, job.Start("@every 1h"))
	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job.Stop(ctx)
}
