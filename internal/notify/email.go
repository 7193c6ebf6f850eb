// internal/notify/email.go
// Email delivery via SendGrid

package notify

import (
    "context"
    "fmt"
    "log"

    "github.com/sendgrid/sendgrid-go"
    "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers a plain email.
type EmailSender interface {
    SendEmail(ctx context.Context, to, subject, body string) error
}

type sendgridEmailSender struct {
    apiKey   string
    from     string
    fromName string
}

// NewSendGridEmailSender creates the SendGrid-backed sender.
func NewSendGridEmailSender(apiKey, from string) EmailSender {
    return &sendgridEmailSender{apiKey: apiKey, from: from, fromName: "Lumera"}
}

func (s *sendgridEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
    message := mail.NewSingleEmail(
        mail.NewEmail(s.fromName, s.from),
        subject,
        mail.NewEmail("", to),
        body,
        "",
    )

    client := sendgrid.NewSendClient(s.apiKey)
    response, err := client.Send(message)
    if err != nil {
        return fmt.Errorf("failed to send email via SendGrid: %w", err)
    }
    if response.StatusCode >= 400 {
        return fmt.Errorf("SendGrid returned error status: %d", response.StatusCode)
    }
    log.Printf("Email sent to %s: %s", to, subject)
    return nil
}

// MockEmailSender records emails for tests.
type MockEmailSender struct {
    Sent []MockEmail
}

// MockEmail is one recorded email.
type MockEmail struct {
    To      string
    Subject string
    Body    string
}

func NewMockEmailSender() *MockEmailSender {
    return &MockEmailSender{}
}

func (m *MockEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
    m.Sent = append(m.Sent, MockEmail{To: to, Subject: subject, Body: body})
    return nil
}
