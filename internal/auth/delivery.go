package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/mail"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// OTPSender delivers an issued code to its email address.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

// MailSenderConfig configures the email rendering of OTP codes.
type MailSenderConfig struct {
	From    string
	Subject string
	AppName string
	Clock   func() time.Time
}

// MailSender renders OTP codes as plain-text email.
type MailSender struct {
	mailer mail.Mailer
	cfg    MailSenderConfig
}

// NewMailSender constructs a MailSender over the supplied mailer.
func NewMailSender(mailer mail.Mailer, cfg MailSenderConfig) (*MailSender, error) {
	if mailer == nil {
		return nil, errors.New("otp mail: mailer is required")
	}
	if strings.TrimSpace(cfg.AppName) == "" {
		cfg.AppName = "AuthCore"
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		cfg.Subject = "Your " + cfg.AppName + " sign-in code"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &MailSender{mailer: mailer, cfg: cfg}, nil
}

// SendOTP emails the code to the address.
func (s *MailSender) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(expiresAt.Sub(s.cfg.Clock()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	body := fmt.Sprintf(
		"Your %s sign-in code is: %s\r\n\r\nThe code expires in %d minute(s) and can be used once.\r\n"+
			"If you did not request it, you can ignore this email.\r\n",
		s.cfg.AppName, code, minutes,
	)

	return s.mailer.Send(ctx, mail.Message{
		From:    s.cfg.From,
		To:      []string{email},
		Subject: s.cfg.Subject,
		Body:    body,
	})
}

// DispatcherConfig configures OTP delivery.
type DispatcherConfig struct {
	// Async sends in the background so the request does not wait on the mail server.
	Async   bool
	Timeout time.Duration
	// Rate and Burst throttle outbound messages per second. A zero Rate disables throttling.
	Rate  float64
	Burst int
}

// Dispatcher hands codes to an OTPSender, either inline or in the background. Failed background
// deliveries are logged and counted, never retried.
type Dispatcher struct {
	sender  OTPSender
	async   bool
	timeout time.Duration
	limiter *rate.Limiter
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(sender OTPSender, cfg DispatcherConfig) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("otp dispatcher: sender is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}

	return &Dispatcher{
		sender:  sender,
		async:   cfg.Async,
		timeout: cfg.Timeout,
		limiter: limiter,
		log:     logger.WithModule("otp"),
	}, nil
}

// Dispatch delivers the code. In synchronous mode a failure is returned wrapping ErrOTPDelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, email, code string, expiresAt time.Time) error {
	if !d.async {
		if err := d.deliver(ctx, email, code, expiresAt); err != nil {
			return fmt.Errorf("%w: %v", ErrOTPDelivery, err)
		}
		return nil
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("%w: dispatcher closed", ErrOTPDelivery)
	}
	d.wg.Add(1)
	d.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		if err := d.deliver(bg, email, code, expiresAt); err != nil {
			d.log.Warn("otp delivery failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		}
	}()
	return nil
}

// Close stops accepting deliveries and waits for in-flight ones until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, email, code string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			metrics.OTPDeliveries.WithLabelValues("throttled").Inc()
			return fmt.Errorf("otp dispatcher: throttled: %w", err)
		}
	}

	err := d.sender.SendOTP(ctx, email, code, expiresAt)
	switch {
	case err == nil:
		metrics.OTPDeliveries.WithLabelValues("sent").Inc()
	case errors.Is(err, mail.ErrSMTPDisabled):
		metrics.OTPDeliveries.WithLabelValues("disabled").Inc()
	default:
		metrics.OTPDeliveries.WithLabelValues("failed").Inc()
	}
	return err
}
