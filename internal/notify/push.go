// internal/notify/push.go
// Push delivery via Firebase Cloud Messaging

package notify

import (
    "context"
    "errors"
    "fmt"
    "log"

    firebase "firebase.google.com/go/v4"
    "firebase.google.com/go/v4/messaging"
    "google.golang.org/api/option"
)

// PushSender delivers a push notification to a set of device tokens.
type PushSender interface {
    SendPush(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

type fcmPushSender struct {
    client *messaging.Client
}

// NewFCMPushSender initializes Firebase messaging from a credentials file.
func NewFCMPushSender(ctx context.Context, credentialsPath string) (PushSender, error) {
    if credentialsPath == "" {
        return nil, errors.New("FCM credentials path must be set")
    }

    opt := option.WithCredentialsFile(credentialsPath)
    app, err := firebase.NewApp(ctx, nil, opt)
    if err != nil {
        return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
    }

    client, err := app.Messaging(ctx)
    if err != nil {
        return nil, fmt.Errorf("failed to get messaging client: %w", err)
    }
    return &fcmPushSender{client: client}, nil
}

func (s *fcmPushSender) SendPush(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
    if len(tokens) == 0 {
        return nil
    }

    notification := &messaging.Notification{Title: title, Body: body}
    messages := make([]*messaging.Message, 0, len(tokens))
    for _, token := range tokens {
        messages = append(messages, &messaging.Message{
            Token:        token,
            Notification: notification,
            Data:         data,
            Android: &messaging.AndroidConfig{
                Priority: "high",
            },
            APNS: &messaging.APNSConfig{
                Headers: map[string]string{"apns-priority": "10"},
            },
        })
    }

    batch, err := s.client.SendAll(ctx, messages)
    if err != nil {
        return fmt.Errorf("failed to send push batch: %w", err)
    }
    if batch.FailureCount > 0 {
        for idx, resp := range batch.Responses {
            if resp.Error != nil {
                log.Printf("Push to token %s failed: %v", tokens[idx], resp.Error)
            }
        }
    }
    return nil
}

// MockPushSender records pushes for tests and local development.
type MockPushSender struct {
    Sent []MockPush
}

// MockPush is one recorded push.
type MockPush struct {
    Tokens []string
    Title  string
    Body   string
    Data   map[string]string
}

func NewMockPushSender() *MockPushSender {
    return &MockPushSender{}
}

func (m *MockPushSender) SendPush(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
    m.Sent = append(m.Sent, MockPush{Tokens: tokens, Title: title, Body: body, Data: data})
    return nil
}
