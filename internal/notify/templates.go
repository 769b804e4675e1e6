package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]mailTemplate{
	TemplateRegistrationReceived: mustTemplate(TemplateRegistrationReceived,
		"We received your registration",
		`Hello {{.name}},

Your registration for {{.course}} has been received and is awaiting review.
Reference: {{.registrationId}}

We will email you once a staff member has reviewed it.`),
	TemplateRegistrationApproved: mustTemplate(TemplateRegistrationApproved,
		"Welcome to {{.course}}",
		`Hello {{.name}},

Your registration has been approved. Your student number is {{.studentNumber}}.
Sign in with this email address and the password you chose to get your attendance QR code.`),
	TemplateRegistrationRejected: mustTemplate(TemplateRegistrationRejected,
		"Your registration was not approved",
		`Hello {{.name}},

Unfortunately your registration for {{.course}} was not approved.
Reason: {{.reason}}

You are welcome to submit a new registration.`),
	TemplateReassignmentApproved: mustTemplate(TemplateReassignmentApproved,
		"Session change approved",
		`Hello {{.name}},

Your request to move to the {{.day}} session {{.session}} was approved.`),
	TemplateReassignmentDenied: mustTemplate(TemplateReassignmentDenied,
		"Session change denied",
		`Hello {{.name}},

Your request to move to the {{.day}} session {{.session}} was denied.{{if .reason}}
Reason: {{.reason}}{{end}}`),
}

func mustTemplate(name, subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New(name + "_subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(name + "_body").Option("missingkey=zero").Parse(body)),
	}
}

// Render produces the subject and plain-text body of msg.
func Render(msg Message) (string, string, error) {
	tpl, ok := templates[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", msg.Template)
	}
	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, msg.Data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", msg.Template, err)
	}
	if err := tpl.body.Execute(&body, msg.Data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", msg.Template, err)
	}
	return subject.String(), body.String(), nil
}
