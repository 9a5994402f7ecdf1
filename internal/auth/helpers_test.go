package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database/testutil"
)

var testDigestKey = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceCodes hands out the given codes in order, then numbered fallbacks.
func sequenceCodes(codes ...string) CodeGenerator {
	var (
		mu sync.Mutex
		n  int
	)
	return func(length int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n <= len(codes) {
			return codes[n-1], nil
		}
		return fmt.Sprintf("%0*d", length, n), nil
	}
}

type sentOTP struct {
	email     string
	code      string
	expiresAt time.Time
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentOTP
	err  error
}

func (s *recordingSender) SendOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentOTP{email: email, code: code, expiresAt: expiresAt})
	return s.err
}

func (s *recordingSender) last(t *testing.T) sentOTP {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "no otp was sent")
	return s.sent[len(s.sent)-1]
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

var errBoom = errors.New("boom")
