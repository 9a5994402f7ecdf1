package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/pkg/mail"
)

type fakeMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return m.err
}

type blockingSender struct {
	release chan struct{}
	done    chan struct{}
}

func (s *blockingSender) SendOTP(ctx context.Context, _, _ string, _ time.Time) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	close(s.done)
	return nil
}

func TestMailSenderRendersCode(t *testing.T) {
	clock := newTestClock()
	mailer := &fakeMailer{}
	sender, err := NewMailSender(mailer, MailSenderConfig{From: "login@example.com", AppName: "Acme", Clock: clock.Now})
	require.NoError(t, err)

	require.NoError(t, sender.SendOTP(context.Background(), "a@x.com", "123456", clock.Now().Add(10*time.Minute)))

	require.Len(t, mailer.msgs, 1)
	msg := mailer.msgs[0]
	require.Equal(t, []string{"a@x.com"}, msg.To)
	require.Equal(t, "login@example.com", msg.From)
	require.Equal(t, "Your Acme sign-in code", msg.Subject)
	require.Contains(t, msg.Body, "123456")
	require.Contains(t, msg.Body, "10 minute(s)")

	_, err = NewMailSender(nil, MailSenderConfig{})
	require.Error(t, err)
}

func TestDispatcherSynchronous(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDispatcher(sender, DispatcherConfig{})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), "a@x.com", "111111", time.Now()))
	require.Equal(t, "111111", sender.last(t).code)

	sender.err = errBoom
	err = d.Dispatch(context.Background(), "a@x.com", "222222", time.Now())
	require.ErrorIs(t, err, ErrOTPDelivery)
}

func TestDispatcherAsynchronousDoesNotBlock(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{}), done: make(chan struct{})}
	d, err := NewDispatcher(sender, DispatcherConfig{Async: true, Timeout: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), "a@x.com", "111111", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded, "delivery still in flight")

	close(sender.release)
	require.NoError(t, d.Close(context.Background()))
	<-sender.done

	err = d.Dispatch(context.Background(), "a@x.com", "222222", time.Now())
	require.ErrorIs(t, err, ErrOTPDelivery, "closed dispatcher rejects work")
}

func TestDispatcherAsyncSurvivesRequestCancellation(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDispatcher(sender, DispatcherConfig{Async: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Dispatch(ctx, "a@x.com", "333333", time.Now()))
	cancel()

	require.NoError(t, d.Close(context.Background()))
	require.Equal(t, "333333", sender.last(t).code)
}

func TestDispatcherThrottle(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDispatcher(sender, DispatcherConfig{Rate: 0.001, Burst: 1, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), "a@x.com", "1", time.Now()))
	err = d.Dispatch(context.Background(), "b@x.com", "2", time.Now())
	require.ErrorIs(t, err, ErrOTPDelivery)
	require.Equal(t, 1, sender.count())
}
