// internal/conversations/service_test.go

package conversations

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestCreateRoomIdempotentOnPair(t *testing.T) {
    svc := NewMemoryService()
    ctx := context.Background()

    first, err := svc.CreateRoom(ctx, 1, 2)
    require.NoError(t, err)
    require.NotEmpty(t, first)

    // Same pair in either order converges on one room.
    second, err := svc.CreateRoom(ctx, 2, 1)
    require.NoError(t, err)
    assert.Equal(t, first, second)

    other, err := svc.CreateRoom(ctx, 1, 3)
    require.NoError(t, err)
    assert.NotEqual(t, first, other)
}

func TestGetRoom(t *testing.T) {
    svc := NewMemoryService()
    ctx := context.Background()

    room, err := svc.GetRoom(ctx, 1, 2)
    require.NoError(t, err)
    assert.Empty(t, room)

    created, err := svc.CreateRoom(ctx, 1, 2)
    require.NoError(t, err)
    room, err = svc.GetRoom(ctx, 2, 1)
    require.NoError(t, err)
    assert.Equal(t, created, room)
}

func TestCreateRoomFailureInjection(t *testing.T) {
    svc := NewMemoryService()
    svc.FailCreates = 1
    ctx := context.Background()

    _, err := svc.CreateRoom(ctx, 1, 2)
    require.Error(t, err)

    room, err := svc.CreateRoom(ctx, 1, 2)
    require.NoError(t, err)
    assert.NotEmpty(t, room)
}
