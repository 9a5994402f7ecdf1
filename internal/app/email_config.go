package app

import (
	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/pkg/mail"
)

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// MailSenderConfig converts EmailConfig into the OTP email renderer parameters.
func (c EmailConfig) MailSenderConfig() auth.MailSenderConfig {
	return auth.MailSenderConfig{
		From:    c.SMTP.From,
		Subject: c.OTPSubject,
		AppName: c.AppName,
	}
}
