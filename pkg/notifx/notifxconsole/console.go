package notifxconsole

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/Abraxas-365/authlink/pkg/logx"
	"github.com/Abraxas-365/authlink/pkg/notifx"
)

// ConsoleProvider prints emails via logx and keeps them in memory. Intended
// for development and tests.
type ConsoleProvider struct {
	mu   sync.Mutex
	sent []notifx.EmailMessage
}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

// SendEmail logs the email instead of sending it.
func (p *ConsoleProvider) SendEmail(_ context.Context, msg notifx.EmailMessage, opts ...notifx.Option) error {
	so := notifx.ApplySendOptions(opts)

	logx.WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
		"kind":    so.Tags["kind"],
	}).Info("notifx/console: email sent (dev mode)")

	if msg.TextBody != "" {
		logx.Debugf("notifx/console: text body:\n%s", msg.TextBody)
	}

	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	return nil
}

// Sent returns a copy of every message sent so far.
func (p *ConsoleProvider) Sent() []notifx.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.sent)
}
