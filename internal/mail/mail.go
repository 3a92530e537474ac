// Package mail is the email collaborator for the password reset flow.
// The core treats it as fire-and-forget: send, log on failure, move on.
package mail

import (
	"log"
	"strings"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages. Wire a real transport (SMTP, an API client)
// behind this when one is configured.
type Sender interface {
	Send(msg Message) error
}

// ConsoleSender writes the message to the log instead of delivering it,
// which is how development and unconfigured deployments run.
type ConsoleSender struct{}

func (ConsoleSender) Send(msg Message) error {
	divider := strings.Repeat("=", 50)
	log.Printf("\n%s\nEMAIL (not delivered, no transport configured)\nTo: %s\nSubject: %s\n%s\n%s", divider, msg.To, msg.Subject, msg.Text, divider)
	return nil
}

// ResetPasswordMessage builds the password reset email pointing at resetURL.
func ResetPasswordMessage(to, name, resetURL string) Message {
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + name
	}
	return Message{
		To:      to,
		Subject: "Password reset",
		HTML: `<p>` + greeting + `,</p>` +
			`<p>You asked to reset your password. Use the link below to choose a new one:</p>` +
			`<p><a href="` + resetURL + `">Reset password</a></p>` +
			`<p>This link expires in 1 hour. If you did not request this, ignore this email.</p>`,
		Text: greeting + ",\n\n" +
			"You asked to reset your password. Use the link below to choose a new one:\n\n" +
			resetURL + "\n\n" +
			"This link expires in 1 hour. If you did not request this, ignore this email.\n",
	}
}
