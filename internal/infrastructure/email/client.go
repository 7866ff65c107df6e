// Package email provides the email client for sending transactional emails.
package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/resendlabs/resend-go"

	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// Service defines the interface for sending emails, allowing for mock
// implementations in tests.
type Service interface {
	SendLeadNotification(lead *LeadNotification) error
}

// LeadNotification carries the fields shown in the operator email.
type LeadNotification struct {
	LeadID      string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	LandingPath string
	GCLID       string
}

// ResendClient is the concrete implementation of the email Service using
// the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
	toEmail   string
}

// NewService creates a new email service client, returning the Service
// interface.
func NewService() (Service, error) {
	if config.ResendAPIKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY environment variable is required")
	}
	if config.LeadNotifyEmail == "" {
		return nil, fmt.Errorf("LEAD_NOTIFY_EMAIL environment variable is required")
	}

	return &ResendClient{
		client:    resend.NewClient(config.ResendAPIKey),
		fromEmail: config.EmailFromAddress,
		fromName:  config.EmailFromName,
		toEmail:   config.LeadNotifyEmail,
	}, nil
}

var leadNotificationTemplate = template.Must(template.New("leadNotification").Parse(`
<!doctype html>
<html lang="en">
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.3; background-color: #f4f5f6; margin: 0; padding: 16px;">
    <div style="background-color: #ffffff; border-radius: 8px; padding: 24px; max-width: 600px; margin: 0 auto;">
      <h2 style="margin-top: 0;">New lead submitted</h2>
      <table role="presentation" cellpadding="4" cellspacing="0">
        <tr><td style="color: #6b7280;">Name</td><td>{{.FirstName}} {{.LastName}}</td></tr>
        <tr><td style="color: #6b7280;">Email</td><td>{{.Email}}</td></tr>
        <tr><td style="color: #6b7280;">Phone</td><td>{{.Phone}}</td></tr>
        <tr><td style="color: #6b7280;">Landing path</td><td>{{.LandingPath}}</td></tr>
        {{if .GCLID}}<tr><td style="color: #6b7280;">gclid</td><td>{{.GCLID}}</td></tr>{{end}}
      </table>
      <p style="color: #6b7280; font-size: 13px;">Lead id {{.LeadID}}</p>
    </div>
  </body>
</html>`))

// SendLeadNotification composes and sends the new-lead operator email.
func (c *ResendClient) SendLeadNotification(lead *LeadNotification) error {
	var body bytes.Buffer
	if err := leadNotificationTemplate.Execute(&body, lead); err != nil {
		return fmt.Errorf("failed to render lead notification email: %w", err)
	}

	subject := fmt.Sprintf("New lead: %s %s", lead.FirstName, lead.LastName)
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{c.toEmail},
		Subject: subject,
		Html:    body.String(),
	}

	_, err := c.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send lead notification via Resend: %w", err)
	}
	return nil
}
