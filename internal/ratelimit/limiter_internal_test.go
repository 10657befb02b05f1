package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-options/internal/mocks"
)

func TestAllowLocal_PrunesRefilledBuckets(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	gomock.InOrder(
		clock.EXPECT().Now().Return(start).Times(3),
		clock.EXPECT().Now().Return(start.Add(localPruneInterval)).Times(1),
	)

	lim, err := New(Config{RequestsPerSecond: 1, Burst: 5}, nil, clock)
	require.NoError(t, err)
	l := lim.(*limiter)
	ctx := context.Background()

	for _, key := range []string{"ip:idle", "ip:hot", "ip:hot"} {
		d, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	assert.Len(t, l.local, 2)

	// a minute later both buckets have refilled and are dropped before the new key is added
	d, err := l.Allow(ctx, "ip:new")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Len(t, l.local, 1)
	assert.Contains(t, l.local, "ip:new")
}

func TestAllowLocal_KeepsBucketsStillDraining(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	gomock.InOrder(
		clock.EXPECT().Now().Return(start).Times(1),
		clock.EXPECT().Now().Return(start.Add(localPruneInterval)).Times(2),
	)

	// 100 tokens at 1/s take longer than the prune interval to refill
	lim, err := New(Config{RequestsPerSecond: 1, Burst: 100}, nil, clock)
	require.NoError(t, err)
	l := lim.(*limiter)
	ctx := context.Background()

	_, err = l.Allow(ctx, "sub:writer")
	require.NoError(t, err)

	// empty the bucket so a minute of refill cannot fill it
	r := l.local["sub:writer"].ReserveN(start, 99)
	require.True(t, r.OK())

	_, err = l.Allow(ctx, "sub:other")
	require.NoError(t, err)
	_, err = l.Allow(ctx, "sub:other")
	require.NoError(t, err)

	assert.Contains(t, l.local, "sub:writer")
	assert.Contains(t, l.local, "sub:other")
}
