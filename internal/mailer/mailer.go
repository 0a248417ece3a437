package mailer

import (
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

var ErrCircuitOpen = errors.New("smtp circuit breaker is open")

// Message is one outgoing HTML email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages
type Sender interface {
	Send(msg Message) error
}

// SMTPSender sends through an SMTP relay with gomail
type SMTPSender struct {
	dialer  *gomail.Dialer
	from    string
	breaker *CircuitBreaker
}

func NewSMTPSender(host string, port int, username, password, from string, breaker *CircuitBreaker) *SMTPSender {
	return &SMTPSender{
		dialer:  gomail.NewDialer(host, port, username, password),
		from:    from,
		breaker: breaker,
	}
}

func (s *SMTPSender) Send(msg Message) error {
	if s.breaker != nil && !s.breaker.CanProceed() {
		return ErrCircuitOpen
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		if s.breaker != nil {
			s.breaker.RecordFailure()
		}
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}

	if s.breaker != nil {
		s.breaker.RecordSuccess()
	}
	return nil
}
