package mailer

import (
	"fmt"
	"html"
	"strings"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

// Render builds the message for an email job.
// baseURL is the public API root used in verification links.
func Render(job *models.EmailJob, baseURL string) (Message, error) {
	base := strings.TrimRight(baseURL, "/")
	code := html.EscapeString(job.Code)

	switch job.Kind {
	case models.EmailKindSignupVerification:
		link := fmt.Sprintf("%s/api/accounts/signup/verify?code=%s", base, code)
		return Message{
			To:      job.Recipient,
			Subject: "Verify your Bhara account",
			HTML: fmt.Sprintf(`<p>Welcome to Bhara!</p>
<p>Please confirm your email address by opening the link below:</p>
<p><a href="%s">%s</a></p>
<p>Your verification code is <strong>%s</strong>.</p>`, link, link, code),
		}, nil

	case models.EmailKindPasswordReset:
		link := fmt.Sprintf("%s/api/accounts/password/reset/verify?code=%s", base, code)
		return Message{
			To:      job.Recipient,
			Subject: "Reset your Bhara password",
			HTML: fmt.Sprintf(`<p>We received a request to reset your password.</p>
<p><a href="%s">%s</a></p>
<p>Your reset code is <strong>%s</strong>. If you did not ask for this, ignore this email.</p>`, link, link, code),
		}, nil
	}

	return Message{}, fmt.Errorf("unknown email kind %q", job.Kind)
}
