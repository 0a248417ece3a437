package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

func TestCircuitBreakerOpensAndResets(t *testing.T) {
	clock := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = func() time.Time { return clock }

	cb.RecordFailure()
	cb.RecordFailure()
	require.True(t, cb.CanProceed())

	cb.RecordFailure()
	require.False(t, cb.CanProceed())
	isOpen, failures, total := cb.GetStatus()
	require.True(t, isOpen)
	require.Equal(t, 3, failures)
	require.Equal(t, 3, total)

	clock = clock.Add(2 * time.Minute)
	require.True(t, cb.CanProceed())

	// half-open: a single failure reopens
	cb.RecordFailure()
	require.False(t, cb.CanProceed())
}

func TestCircuitBreakerSuccessResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	require.True(t, cb.CanProceed())
}

func TestRenderSignup(t *testing.T) {
	msg, err := Render(&models.EmailJob{
		Kind:      models.EmailKindSignupVerification,
		Recipient: "rahim@example.com",
		Code:      "abc123",
	}, "https://api.bhara.xyz/")
	require.NoError(t, err)
	require.Equal(t, "rahim@example.com", msg.To)
	require.Contains(t, msg.HTML, "https://api.bhara.xyz/api/accounts/signup/verify?code=abc123")
}

func TestRenderUnknownKind(t *testing.T) {
	_, err := Render(&models.EmailJob{Kind: "newsletter"}, "")
	require.Error(t, err)
}

type memOutbox struct {
	jobs []*models.EmailJob
}

func (m *memOutbox) EnqueueEmail(_ context.Context, job *models.EmailJob) error {
	m.jobs = append(m.jobs, job)
	return nil
}

func TestOutboxListenerEnqueues(t *testing.T) {
	outbox := &memOutbox{}
	l := NewOutboxListener(outbox)
	user := &models.User{ID: "u1", Email: "mim@example.com"}

	require.NoError(t, l.OnSignupCodeCreated(context.Background(), user, "c1"))
	require.NoError(t, l.OnPasswordResetCodeCreated(context.Background(), user, "c2"))

	require.Len(t, outbox.jobs, 2)
	require.Equal(t, models.EmailKindSignupVerification, outbox.jobs[0].Kind)
	require.Equal(t, models.EmailKindPasswordReset, outbox.jobs[1].Kind)
	require.Equal(t, "mim@example.com", outbox.jobs[1].Recipient)
	require.Equal(t, models.EmailStatusPending, outbox.jobs[0].Status)
}
