package notifx

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	CC       []string `json:"cc,omitempty"`
	BCC      []string `json:"bcc,omitempty"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// VerificationEmail is the data of the email verification template.
type VerificationEmail struct {
	To       string
	Link     string
	AppName  string
	TenantID string
}

// PasswordlessCodeEmail is the data of the passwordless code template.
type PasswordlessCodeEmail struct {
	To       string
	Code     string
	ValidFor string
	AppName  string
	TenantID string
}
