package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	before  []time.Time
	removed int64
	err     error
}

func (p *fakePruner) Prune(ctx context.Context, before time.Time) (int64, error) {
	p.before = append(p.before, before)
	return p.removed, p.err
}

func TestRetentionPruneOnce(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakePruner{removed: 4}

	r, err := NewRetention(repo, 48*time.Hour, "@daily", WithRetentionClock(func() time.Time { return now }))
	require.NoError(t, err)

	removed, err := r.PruneOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
	require.Len(t, repo.before, 1)
	assert.Equal(t, now.Add(-48*time.Hour), repo.before[0])
}

func TestRetentionPruneError(t *testing.T) {
	repo := &fakePruner{err: errors.New("disk full")}
	r, err := NewRetention(repo, time.Hour, "0 3 * * *")
	require.NoError(t, err)

	removed, err := r.PruneOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, removed)
}

func TestRetentionRejectsBadInput(t *testing.T) {
	_, err := NewRetention(&fakePruner{}, 0, "@daily")
	assert.ErrorIs(t, err, ErrInvalidRetention)

	_, err = NewRetention(&fakePruner{}, time.Hour, "every tuesday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid prune schedule")
}

func TestRetentionStartStop(t *testing.T) {
	r, err := NewRetention(&fakePruner{}, time.Hour, "@hourly")
	require.NoError(t, err)
	r.Start()
	r.Stop()
}
