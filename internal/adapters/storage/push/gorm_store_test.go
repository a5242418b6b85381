package push_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memberStore "fellowship/internal/adapters/storage/member"
	pushStore "fellowship/internal/adapters/storage/push"
	"fellowship/internal/adapters/storage/storagetest"
	"fellowship/internal/domain/apperr"
	memberdomain "fellowship/internal/domain/member"
	domain "fellowship/internal/domain/push"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) *pushStore.GormStore {
	t.Helper()
	db := storagetest.Open(t, &memberStore.Record{}, &pushStore.Record{})
	members := memberStore.NewGormStore(db)
	for _, id := range []string{"m-1", "m-2"} {
		m := memberdomain.New(id, id+"@example.com", "Member", id, memberdomain.RoleMember, nil, now)
		require.NoError(t, members.Create(context.Background(), m))
	}
	return pushStore.NewGormStore(db)
}

func sub(id, member, endpoint string) *domain.Subscription {
	return &domain.Subscription{
		ID:        id,
		MemberID:  member,
		Endpoint:  endpoint,
		P256dh:    "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM",
		Auth:      "tBHItJI5svbpez7KI4CCXg",
		CreatedAt: now,
	}
}

func TestCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	require.NoError(t, s.Create(ctx, sub("s-1", "m-1", "https://push.example.com/a")))
	require.NoError(t, s.Create(ctx, sub("s-2", "m-1", "https://push.example.com/b")))
	require.NoError(t, s.Create(ctx, sub("s-3", "m-2", "https://push.example.com/c")))

	err := s.Create(ctx, sub("s-4", "m-2", "https://push.example.com/a"))
	assert.ErrorIs(t, err, domain.ErrEndpointTaken)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = s.Create(ctx, sub("s-5", "ghost", "https://push.example.com/z"))
	assert.ErrorIs(t, err, memberdomain.ErrNotFound)

	err = s.Create(ctx, sub("s-6", "m-1", "http://insecure.example.com"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := s.GetByEndpoint(ctx, "https://push.example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.ID)

	mine, err := s.ListByMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	both, err := s.ListByMembers(ctx, []string{"m-1", "m-2"})
	require.NoError(t, err)
	assert.Len(t, both, 3)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	v := sub("s-1", "m-1", "https://push.example.com/a")
	require.NoError(t, s.Create(ctx, v))

	used := now.Add(time.Hour)
	v.LastUsedAt = &used
	require.NoError(t, s.Update(ctx, v))
	got, err := s.GetByID(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, got.LastUsedAt.Equal(used))

	require.NoError(t, s.DeleteByEndpoint(ctx, "https://push.example.com/a"))
	assert.ErrorIs(t, s.Delete(ctx, "s-1"), domain.ErrNotFound)
	_, err = s.GetByID(ctx, "s-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
