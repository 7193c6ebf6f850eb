// internal/notify/service_test.go

package notify

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lumera-app/match-service/internal/matchmaking"
    "github.com/lumera-app/match-service/internal/users"
)

type stubProvider struct {
    profiles map[int64]*users.Profile
}

func (s *stubProvider) Get(ctx context.Context, userID int64) (*users.Profile, error) {
    p, ok := s.profiles[userID]
    if !ok {
        return nil, users.ErrNotFound
    }
    return p, nil
}

func (s *stubProvider) List(ctx context.Context, userIDs []int64) (map[int64]*users.Profile, error) {
    out := make(map[int64]*users.Profile)
    for _, id := range userIDs {
        if p, ok := s.profiles[id]; ok {
            out[id] = p
        }
    }
    return out, nil
}

func strPtr(v string) *string { return &v }

type notifyHarness struct {
    service  *Service
    repo     Repository
    push     *MockPushSender
    email    *MockEmailSender
    sms      *MockSMSSender
    provider *stubProvider
}

func newNotifyHarness(t *testing.T, cfg ChannelConfig) *notifyHarness {
    t.Helper()
    repo := NewMemoryRepository()
    push := NewMockPushSender()
    email := NewMockEmailSender()
    sms := NewMockSMSSender()
    provider := &stubProvider{profiles: map[int64]*users.Profile{
        1: {ID: 1, Username: "alice", Email: strPtr("alice@example.com"), Phone: strPtr("+15550001")},
        2: {ID: 2, Username: "bob"},
    }}
    return &notifyHarness{
        service:  NewService(repo, NewHub(), push, email, sms, provider, cfg),
        repo:     repo,
        push:     push,
        email:    email,
        sms:      sms,
        provider: provider,
    }
}

func TestSendNewMatchExactlyOnce(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{})
    ctx := context.Background()
    payload := matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch, payload))
    // A duplicate delivery for the same (user, match, kind) is absorbed.
    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch, payload))

    rows, err := h.service.List(ctx, 1, 20, 0)
    require.NoError(t, err)
    require.Len(t, rows, 1)
    assert.Equal(t, KindNewMatch, rows[0].Kind)
    assert.Equal(t, "m-1", *rows[0].MatchID)
    assert.Equal(t, "m-1", rows[0].Data["matchId"])
}

func TestSendDistinctKindsForSameMatch(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{})
    ctx := context.Background()
    payload := matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch, payload))
    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindMatchAccepted, payload))

    rows, err := h.service.List(ctx, 1, 20, 0)
    require.NoError(t, err)
    assert.Len(t, rows, 2)
}

func TestSendFansOutToPush(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{EnablePush: true})
    ctx := context.Background()
    require.NoError(t, h.service.RegisterPushToken(ctx, 1, "ios", "token-1"))

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}))

    require.Len(t, h.push.Sent, 1)
    assert.Equal(t, []string{"token-1"}, h.push.Sent[0].Tokens)
    assert.Equal(t, "You have a new match", h.push.Sent[0].Title)
    assert.Equal(t, "m-1", h.push.Sent[0].Data["matchId"])

    // No tokens registered: nothing to push.
    require.NoError(t, h.service.Send(ctx, 2, matchmaking.KindNewMatch,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 1}))
    assert.Len(t, h.push.Sent, 1)
}

func TestEmailOnlyForExpiries(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{EnableEmail: true})
    ctx := context.Background()

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}))
    assert.Empty(t, h.email.Sent)

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindMatchExpired,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}))
    require.Len(t, h.email.Sent, 1)
    assert.Equal(t, "alice@example.com", h.email.Sent[0].To)

    // A user without an email address is skipped quietly.
    require.NoError(t, h.service.Send(ctx, 2, matchmaking.KindMatchExpired,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 1}))
    assert.Len(t, h.email.Sent, 1)
}

func TestSMSOnlyForNewMatches(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{EnableSMS: true})
    ctx := context.Background()

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}))
    require.Len(t, h.sms.Sent, 1)
    assert.Equal(t, "+15550001", h.sms.Sent[0].To)

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindMatchDeclined,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}))
    assert.Len(t, h.sms.Sent, 1)
}

func TestMarkActedUponFlagsMatchRows(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{})
    ctx := context.Background()

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}))
    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch,
        matchmaking.NotificationPayload{MatchID: "m-2", OtherUserID: 3}))

    require.NoError(t, h.service.MarkActedUpon(ctx, 1, "m-1"))

    rows, err := h.service.List(ctx, 1, 20, 0)
    require.NoError(t, err)
    for _, row := range rows {
        if *row.MatchID == "m-1" {
            assert.True(t, row.ActedUpon)
        } else {
            assert.False(t, row.ActedUpon)
        }
    }
}

func TestMarkRead(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{})
    ctx := context.Background()

    require.NoError(t, h.service.Send(ctx, 1, matchmaking.KindNewMatch,
        matchmaking.NotificationPayload{MatchID: "m-1", OtherUserID: 2}))
    rows, err := h.service.List(ctx, 1, 20, 0)
    require.NoError(t, err)
    require.Len(t, rows, 1)

    require.NoError(t, h.service.MarkRead(ctx, 1, rows[0].ID))

    rows, err = h.service.List(ctx, 1, 20, 0)
    require.NoError(t, err)
    assert.True(t, rows[0].IsRead)
}

func TestDispatchMessageEventSanitizesBeforeStorage(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{EnablePush: true})
    ctx := context.Background()
    require.NoError(t, h.service.RegisterPushToken(ctx, 1, "android", "token-1"))

    require.NoError(t, h.service.DispatchMessageEvent(ctx, 1, Data{
        "senderName": "Alice",
        "content":    "secret",
        "matchId":    "m-1",
    }))

    // The stored feed row is already sanitized.
    rows, err := h.service.List(ctx, 1, 20, 0)
    require.NoError(t, err)
    require.Len(t, rows, 1)
    assert.Equal(t, "Alice sent a message", rows[0].Body)
    assert.NotContains(t, rows[0].Data, "content")

    // And so is the push payload.
    require.Len(t, h.push.Sent, 1)
    assert.Equal(t, "Alice sent a message", h.push.Sent[0].Body)
    assert.NotContains(t, h.push.Sent[0].Data, "content")
}

func TestListClampsLimit(t *testing.T) {
    h := newNotifyHarness(t, ChannelConfig{})
    ctx := context.Background()

    rows, err := h.service.List(ctx, 1, -5, 0)
    require.NoError(t, err)
    assert.Empty(t, rows)
}
