package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fisse/internal/core"
)

func TestNewRequiresProject(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestMissingUserIsNotAuthenticated(t *testing.T) {
	s := &Store{now: time.Now}
	_, _, err := s.Get(context.Background(), "expense_templates", "x")
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	_, err = s.NewID(context.Background(), "expense_templates")
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestWrapTracksReachability(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Store{now: func() time.Time { return now }}
	ctx := context.Background()

	assert.True(t, s.Reachable(ctx))

	err := s.wrap("get", status.Error(codes.Unavailable, "down"))
	assert.ErrorIs(t, err, core.ErrRemoteUnavailable)
	assert.False(t, s.Reachable(ctx))

	now = now.Add(retryAfter + time.Second)
	assert.True(t, s.Reachable(ctx), "retry window elapsed")

	s.markUp()
	assert.True(t, s.Reachable(ctx))

	err = s.wrap("put", status.Error(codes.PermissionDenied, "nope"))
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	plain := errors.New("other")
	assert.ErrorIs(t, s.wrap("list", plain), plain)
}
