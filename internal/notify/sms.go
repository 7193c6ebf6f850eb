// internal/notify/sms.go
// SMS delivery via Twilio

package notify

import (
    "context"
    "fmt"
    "log"

    "github.com/twilio/twilio-go"
    twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSSender delivers a short text message.
type SMSSender interface {
    SendSMS(ctx context.Context, to, body string) error
}

type twilioSMSSender struct {
    client *twilio.RestClient
    from   string
}

// NewTwilioSMSSender creates the Twilio-backed sender.
func NewTwilioSMSSender(accountSID, authToken, from string) SMSSender {
    client := twilio.NewRestClientWithParams(twilio.ClientParams{
        Username: accountSID,
        Password: authToken,
    })
    return &twilioSMSSender{client: client, from: from}
}

func (s *twilioSMSSender) SendSMS(ctx context.Context, to, body string) error {
    params := &twilioApi.CreateMessageParams{}
    params.SetTo(to)
    params.SetFrom(s.from)
    params.SetBody(body)

    resp, err := s.client.Api.CreateMessage(params)
    if err != nil {
        return fmt.Errorf("failed to send SMS to %s: %w", to, err)
    }
    if resp.Sid != nil {
        log.Printf("SMS sent to %s with SID %s", to, *resp.Sid)
    }
    return nil
}

// MockSMSSender records messages for tests.
type MockSMSSender struct {
    Sent []MockSMS
}

// MockSMS is one recorded message.
type MockSMS struct {
    To   string
    Body string
}

func NewMockSMSSender() *MockSMSSender {
    return &MockSMSSender{}
}

func (m *MockSMSSender) SendSMS(ctx context.Context, to, body string) error {
    m.Sent = append(m.Sent, MockSMS{To: to, Body: body})
    return nil
}
