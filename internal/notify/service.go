// internal/notify/service.go
// Notification dispatch for match lifecycle events. Implements the match
// pipeline's Notifier contract: at most one NEW_MATCH per (user, attempt),
// acted-upon tracking, and channel fan-out (in-app, WebSocket, push, email,
// SMS) per configuration.

package notify

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/lumera-app/match-service/internal/matchmaking"
    "github.com/lumera-app/match-service/internal/users"
)

// ChannelConfig controls which delivery channels are live.
type ChannelConfig struct {
    EnablePush  bool
    EnableEmail bool
    EnableSMS   bool
}

// Service dispatches notifications.
type Service struct {
    repo     Repository
    hub      *Hub
    push     PushSender
    email    EmailSender
    sms      SMSSender
    provider users.Provider
    cfg      ChannelConfig
}

// NewService wires the dispatcher. Nil senders are tolerated when their
// channel is disabled.
func NewService(repo Repository, hub *Hub, push PushSender, email EmailSender, sms SMSSender, provider users.Provider, cfg ChannelConfig) *Service {
    return &Service{
        repo:     repo,
        hub:      hub,
        push:     push,
        email:    email,
        sms:      sms,
        provider: provider,
        cfg:      cfg,
    }
}

var _ matchmaking.Notifier = (*Service)(nil)

func titleFor(kind string) string {
    switch kind {
    case KindNewMatch:
        return "You have a new match"
    case KindMatchAccepted:
        return "It's a match!"
    case KindMatchDeclined:
        return "Match update"
    case KindMatchExpired:
        return "Match expired"
    default:
        return "Notification"
    }
}

func bodyFor(kind string) string {
    switch kind {
    case KindNewMatch:
        return "Someone compatible is waiting for your answer"
    case KindMatchAccepted:
        return "You both said yes — say hello!"
    case KindMatchDeclined:
        return "This match did not work out"
    case KindMatchExpired:
        return "A match expired before both of you answered"
    default:
        return ""
    }
}

// Send delivers a match lifecycle event to the user. The payload carries ids
// only; profile data never crosses this boundary. Duplicate sends for the
// same (user, match, kind) are absorbed here.
func (s *Service) Send(ctx context.Context, userID int64, kind matchmaking.NotificationKind, payload matchmaking.NotificationPayload) error {
    k := string(kind)
    n := &Notification{
        UserID:  userID,
        Kind:    k,
        Title:   titleFor(k),
        Body:    bodyFor(k),
        MatchID: &payload.MatchID,
        Data: Data{
            "matchId":     payload.MatchID,
            "otherUserId": payload.OtherUserID,
        },
        CreatedAt: time.Now().UTC(),
    }

    created, err := s.repo.CreateOnce(ctx, n)
    if err != nil {
        return err
    }
    if !created {
        return nil
    }

    s.hub.Publish(userID, Event{
        Kind:      n.Kind,
        Title:     n.Title,
        Body:      n.Body,
        Data:      n.Data,
        CreatedAt: n.CreatedAt,
    })

    s.fanOut(ctx, userID, n)
    return nil
}

// MarkActedUpon flags the user's notifications for the attempt so pending
// surfaces stop showing them.
func (s *Service) MarkActedUpon(ctx context.Context, userID int64, matchID string) error {
    return s.repo.MarkActedUpon(ctx, userID, matchID)
}

// DispatchMessageEvent handles NEW_MESSAGE events originating in the chat
// service. The privacy sanitizer runs before anything leaves the process.
func (s *Service) DispatchMessageEvent(ctx context.Context, userID int64, data Data) error {
    body, sanitized := SanitizePayloadForPrivacy(KindNewMessage, "", data)

    n := &Notification{
        UserID:    userID,
        Kind:      KindNewMessage,
        Title:     "New message",
        Body:      body,
        Data:      sanitized,
        CreatedAt: time.Now().UTC(),
    }
    if _, err := s.repo.CreateOnce(ctx, n); err != nil {
        return err
    }

    s.hub.Publish(userID, Event{
        Kind:      n.Kind,
        Title:     n.Title,
        Body:      n.Body,
        Data:      n.Data,
        CreatedAt: n.CreatedAt,
    })
    s.fanOut(ctx, userID, n)
    return nil
}

// fanOut pushes through the optional channels. Channel failures are logged,
// never propagated: the in-app row is the source of truth.
func (s *Service) fanOut(ctx context.Context, userID int64, n *Notification) {
    if s.cfg.EnablePush && s.push != nil {
        tokens, err := s.repo.GetPushTokens(ctx, userID)
        if err != nil {
            log.Printf("Failed to load push tokens for user %d: %v", userID, err)
        } else if len(tokens) > 0 {
            body, data := SanitizePayloadForPrivacy(n.Kind, n.Body, n.Data)
            if err := s.push.SendPush(ctx, tokens, n.Title, body, flatten(data)); err != nil {
                log.Printf("Push dispatch for user %d failed: %v", userID, err)
            }
        }
    }

    if !s.cfg.EnableEmail && !s.cfg.EnableSMS {
        return
    }
    profile, err := s.provider.Get(ctx, userID)
    if err != nil {
        log.Printf("Failed to load profile for notification fan-out to user %d: %v", userID, err)
        return
    }

    // Email only for expiries: the one event the user may otherwise miss
    // entirely.
    if s.cfg.EnableEmail && s.email != nil && n.Kind == KindMatchExpired && profile.Email != nil {
        if err := s.email.SendEmail(ctx, *profile.Email, n.Title, n.Body); err != nil {
            log.Printf("Email dispatch for user %d failed: %v", userID, err)
        }
    }

    if s.cfg.EnableSMS && s.sms != nil && n.Kind == KindNewMatch && profile.Phone != nil {
        if err := s.sms.SendSMS(ctx, *profile.Phone, n.Title); err != nil {
            log.Printf("SMS dispatch for user %d failed: %v", userID, err)
        }
    }
}

func flatten(data Data) map[string]string {
    out := make(map[string]string, len(data))
    for k, v := range data {
        out[k] = fmt.Sprintf("%v", v)
    }
    return out
}

// List returns the user's notification feed, newest first.
func (s *Service) List(ctx context.Context, userID int64, limit, offset int) ([]*Notification, error) {
    if limit <= 0 || limit > 100 {
        limit = 20
    }
    return s.repo.ListForUser(ctx, userID, limit, offset)
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID int64) error {
    return s.repo.MarkRead(ctx, userID, notificationID)
}

// RegisterPushToken stores a device token.
func (s *Service) RegisterPushToken(ctx context.Context, userID int64, platform, token string) error {
    return s.repo.RegisterPushToken(ctx, userID, platform, token)
}
