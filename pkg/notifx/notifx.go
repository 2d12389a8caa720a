package notifx

import (
	"context"

	"github.com/Abraxas-365/authlink/pkg/logx"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error
}

// Client is the entry point for sending notifications. It validates
// messages, fills the default sender and renders the registered templates.
type Client struct {
	provider  EmailSender
	templates *TemplateRegistry
	from      string
}

// NewClient creates a client with the built-in templates registered.
func NewClient(provider EmailSender, from string) *Client {
	c := &Client{
		provider:  provider,
		templates: NewTemplateRegistry(),
		from:      from,
	}
	for name, tmpl := range builtinTemplates {
		if err := c.templates.Register(name, tmpl); err != nil {
			logx.WithField("template", name).Errorf("notifx: built-in template rejected: %v", err)
		}
	}
	return c
}

// SendEmail sends an email through the configured provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error {
	if c.provider == nil {
		return notifxErrors.New(ErrNoProvider)
	}
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.From == "" {
		msg.From = c.from
	}
	return c.provider.SendEmail(ctx, msg, opts...)
}

// RegisterTemplate parses and stores a named template, replacing any
// template with the same name.
func (c *Client) RegisterTemplate(name string, tmpl EmailTemplate) error {
	return c.templates.Register(name, tmpl)
}

// SendTemplatedEmail renders a template into msg and sends it. A subject or
// text body already set on msg is kept.
func (c *Client) SendTemplatedEmail(ctx context.Context, templateName string, data any, msg EmailMessage, opts ...Option) error {
	rendered, err := c.templates.Render(templateName, data)
	if err != nil {
		return err
	}

	if msg.Subject == "" {
		msg.Subject = rendered.Subject
	}
	if msg.TextBody == "" {
		msg.TextBody = rendered.TextBody
	}
	msg.HTMLBody = rendered.HTMLBody
	return c.SendEmail(ctx, msg, opts...)
}

// SendEmailVerification delivers the email verification link.
func (c *Client) SendEmailVerification(ctx context.Context, v VerificationEmail) error {
	return c.SendTemplatedEmail(ctx, TemplateEmailVerification, v, EmailMessage{To: []string{v.To}},
		WithTags(map[string]string{"kind": TemplateEmailVerification, "tenant": v.TenantID}))
}

// SendPasswordlessCode delivers a one time sign in code.
func (c *Client) SendPasswordlessCode(ctx context.Context, p PasswordlessCodeEmail) error {
	return c.SendTemplatedEmail(ctx, TemplatePasswordlessCode, p, EmailMessage{To: []string{p.To}},
		WithTags(map[string]string{"kind": TemplatePasswordlessCode, "tenant": p.TenantID}))
}
