package notifx

import (
	"bytes"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
)

// TemplateEmailVerification is the built-in email verification template.
// Its data is a VerificationEmail.
const TemplateEmailVerification = "email_verification"

// TemplatePasswordlessCode carries a one time sign in code. Its data is a
// PasswordlessCodeEmail.
const TemplatePasswordlessCode = "passwordless_code"

// EmailTemplate is the source of one named email. Subject and Text are
// text/templates; HTML is an html/template. Text may be empty.
type EmailTemplate struct {
	Subject string
	HTML    string
	Text    string
}

var builtinTemplates = map[string]EmailTemplate{
	TemplateEmailVerification: {
		Subject: `{{.AppName}}: verify your email`,
		HTML: `<p>Hello,</p>
<p>Please verify the email address you use with {{.AppName}}.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>If you did not ask for this, you can ignore this message.</p>`,
		Text: `Please verify the email address you use with {{.AppName}} by opening {{.Link}}

If you did not ask for this, you can ignore this message.`,
	},
	TemplatePasswordlessCode: {
		Subject: `{{.AppName}}: your sign in code`,
		HTML: `<p>Hello,</p>
<p>Your {{.AppName}} sign in code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.ValidFor}}.</p>
<p>If you did not ask for this, you can ignore this message.</p>`,
		Text: `Your {{.AppName}} sign in code is {{.Code}}. It expires in {{.ValidFor}}.

If you did not ask for this, you can ignore this message.`,
	},
}

type compiledTemplate struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// RenderedEmail holds the parts of a rendered EmailTemplate.
type RenderedEmail struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// TemplateRegistry stores and renders named email templates.
type TemplateRegistry struct {
	templates map[string]compiledTemplate
	mu        sync.RWMutex
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]compiledTemplate),
	}
}

// Register parses every part of tmpl and stores it under name, replacing
// any template with the same name.
func (r *TemplateRegistry) Register(name string, tmpl EmailTemplate) error {
	var (
		c   compiledTemplate
		err error
	)
	if c.subject, err = texttemplate.New(name + ".subject").Parse(tmpl.Subject); err != nil {
		return parseError(name, "subject", err)
	}
	if c.html, err = htmltemplate.New(name + ".html").Parse(tmpl.HTML); err != nil {
		return parseError(name, "html", err)
	}
	if tmpl.Text != "" {
		if c.text, err = texttemplate.New(name + ".text").Parse(tmpl.Text); err != nil {
			return parseError(name, "text", err)
		}
	}

	r.mu.Lock()
	r.templates[name] = c
	r.mu.Unlock()
	return nil
}

// Render executes the named template with data.
func (r *TemplateRegistry) Render(name string, data any) (RenderedEmail, error) {
	r.mu.RLock()
	c, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return RenderedEmail{}, notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var out RenderedEmail
	var buf bytes.Buffer
	if err := c.subject.Execute(&buf, data); err != nil {
		return RenderedEmail{}, renderError(name, "subject", err)
	}
	out.Subject = buf.String()

	buf.Reset()
	if err := c.html.Execute(&buf, data); err != nil {
		return RenderedEmail{}, renderError(name, "html", err)
	}
	out.HTMLBody = buf.String()

	if c.text != nil {
		buf.Reset()
		if err := c.text.Execute(&buf, data); err != nil {
			return RenderedEmail{}, renderError(name, "text", err)
		}
		out.TextBody = buf.String()
	}
	return out, nil
}

func parseError(name, part string, err error) error {
	return notifxErrors.NewWithCause(ErrTemplateParse, err).
		WithDetail("template", name).
		WithDetail("part", part)
}

func renderError(name, part string, err error) error {
	return notifxErrors.NewWithCause(ErrTemplateRender, err).
		WithDetail("template", name).
		WithDetail("part", part)
}
