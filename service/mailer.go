package service

import (
	"context"
	"fmt"
	"log"
	"time"

	mail "github.com/go-mail/mail/v2"
	"github.com/selimgur/librarium/models"
)

// EmailLogStore records send attempts; satisfied by store.DB.
type EmailLogStore interface {
	InsertEmailLog(ctx context.Context, entry *models.EmailLog) error
}

// Mailer sends account verification emails over SMTP.
type Mailer struct {
	dialer *mail.Dialer
	from   string
	logs   EmailLogStore
}

func NewMailer(host string, port int, user, pass, from string, logs EmailLogStore) *Mailer {
	d := mail.NewDialer(host, port, user, pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	return &Mailer{dialer: d, from: from, logs: logs}
}

const verificationSubject = "Your library verification code"

// SendVerificationCode emails the OTP to a registering user and records
// the attempt in the email log.
func (m *Mailer) SendVerificationCode(ctx context.Context, to, code string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", verificationSubject)
	msg.SetBody("text/html", verificationBody(code))

	sendErr := m.dialer.DialAndSend(msg)

	entry := &models.EmailLog{
		ToEmail: to,
		Subject: verificationSubject,
		Status:  "sent",
		SentAt:  time.Now(),
	}
	if sendErr != nil {
		entry.Status = "failed"
		entry.Error = sendErr.Error()
	}
	if err := m.logs.InsertEmailLog(ctx, entry); err != nil {
		log.Printf("mailer: failed to insert email log: %v", err)
	}
	return sendErr
}

func verificationBody(code string) string {
	return fmt.Sprintf(`<div style="font-family:sans-serif;max-width:480px;margin:0 auto">
<h2>Verify your email</h2>
<p>Use this code to finish creating your library account:</p>
<p style="font-size:28px;letter-spacing:6px;font-weight:bold">%s</p>
<p>The code expires in 15 minutes. If you did not register, ignore this email.</p>
</div>`, code)
}
