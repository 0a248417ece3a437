package mailer

import (
	"context"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

// Outbox persists email jobs for the email worker
type Outbox interface {
	EnqueueEmail(ctx context.Context, job *models.EmailJob) error
}

// OutboxListener turns account code events into queued emails
type OutboxListener struct {
	outbox Outbox
}

func NewOutboxListener(outbox Outbox) *OutboxListener {
	return &OutboxListener{outbox: outbox}
}

func (l *OutboxListener) OnSignupCodeCreated(ctx context.Context, user *models.User, code string) error {
	return l.enqueue(ctx, models.EmailKindSignupVerification, user, code)
}

func (l *OutboxListener) OnPasswordResetCodeCreated(ctx context.Context, user *models.User, code string) error {
	return l.enqueue(ctx, models.EmailKindPasswordReset, user, code)
}

func (l *OutboxListener) enqueue(ctx context.Context, kind string, user *models.User, code string) error {
	return l.outbox.EnqueueEmail(ctx, &models.EmailJob{
		Kind:      kind,
		Recipient: user.Email,
		UserID:    user.ID,
		Code:      code,
		Status:    models.EmailStatusPending,
	})
}
