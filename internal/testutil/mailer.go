package testutil

import (
	"context"
	"errors"
	"regexp"
	"sync"
)

var (
	codePattern  = regexp.MustCompile(`<h2>(\d{6})</h2>`)
	tokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)

	ErrMailerDown = errors.New("mailer down")
)

type SentMail struct {
	To      string
	Subject string
	HTML    string
}

// RecordingMailer keeps every message instead of delivering it.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentMail
	fail bool
}

func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{}
}

func (m *RecordingMailer) Send(ctx context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return ErrMailerDown
	}
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, HTML: html})
	return nil
}

// SetFailing makes every following Send return ErrMailerDown.
func (m *RecordingMailer) SetFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *RecordingMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// LastCode returns the verification code of the latest mail to the address.
func (m *RecordingMailer) LastCode(to string) string {
	return m.lastMatch(to, codePattern)
}

// LastResetToken returns the reset token of the latest mail to the address.
func (m *RecordingMailer) LastResetToken(to string) string {
	return m.lastMatch(to, tokenPattern)
}

func (m *RecordingMailer) lastMatch(to string, re *regexp.Regexp) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To != to {
			continue
		}
		if match := re.FindStringSubmatch(m.sent[i].HTML); match != nil {
			return match[1]
		}
	}
	return ""
}
