// Package notify renders and delivers outbound emails off the request path.
package notify

import "context"

// Template names known to the renderer.
const (
	TemplateRegistrationReceived = "registration_received"
	TemplateRegistrationApproved = "registration_approved"
	TemplateRegistrationRejected = "registration_rejected"
	TemplateReassignmentApproved = "reassignment_approved"
	TemplateReassignmentDenied   = "reassignment_denied"
)

// Message is one email addressed to a single recipient.
type Message struct {
	To       string
	Template string
	Data     map[string]string
}

// Notifier delivers a rendered message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
