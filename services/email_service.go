package services

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"natours-api/config"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailService struct {
	config  *config.Config
	sender  Sender
	limiter *rate.Limiter
	log     *logrus.Logger
}

func NewEmailService(cfg *config.Config, log *logrus.Logger) *EmailService {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	return NewEmailServiceWithSender(cfg, dialer, log)
}

// NewEmailServiceWithSender builds the service on top of any Sender. Outbound
// mail is throttled to EMAIL_RATE_PER_MINUTE.
func NewEmailServiceWithSender(cfg *config.Config, sender Sender, log *logrus.Logger) *EmailService {
	perMinute := cfg.EmailRatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &EmailService{
		config:  cfg,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		log:     log,
	}
}

func (es *EmailService) send(ctx context.Context, to, subject, text, htmlBody string) error {
	if err := es.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email rate limit: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", es.config.FromName, es.config.FromEmail))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	if htmlBody != "" {
		m.AddAlternative("text/html", htmlBody)
	}

	if err := es.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	es.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("email sent")
	return nil
}

// SendPasswordReset mails the reset link. The link embeds the raw token,
// which is never stored.
func (es *EmailService) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	text := fmt.Sprintf(`Hi %s,

Forgot your password? Submit a PATCH request with your new password and passwordConfirm to:
%s

The link is valid for 10 minutes. If you didn't forget your password, please ignore this email.
`, name, resetURL)

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Hi %s,</p>
    <p>Forgot your password? Submit a PATCH request with your new password and passwordConfirm to:</p>
    <p><a href="%s">%s</a></p>
    <p><small>The link is valid for 10 minutes. If you didn't forget your password, please ignore this email.</small></p>
</body>
</html>`, html.EscapeString(name), html.EscapeString(resetURL), html.EscapeString(resetURL))

	return es.send(ctx, to, "Your Natours password reset token (valid for 10 min)", text, body)
}

func (es *EmailService) SendWelcome(ctx context.Context, to, name, accountURL string) error {
	text := fmt.Sprintf(`Welcome to Natours, %s!

We're glad to have you. Upload a photo and complete your profile at %s.

The Natours Team
`, name, accountURL)

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Welcome to Natours, %s!</h2>
    <p>We're glad to have you. Upload a photo and complete your profile.</p>
    <p><a href="%s">Go to my account</a></p>
    <p><strong>The Natours Team</strong></p>
</body>
</html>`, html.EscapeString(name), html.EscapeString(accountURL))

	return es.send(ctx, to, "Welcome to the Natours family!", text, body)
}
