// Package queue defines message payloads exchanged over the message broker.
package queue

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification templates.  Consumers pick the message wording; the API only
// states which flow produced the code.
const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
	TemplateVerifyPhone   = "verify_phone"
)

// NotificationEvent is published whenever a verification or reset code must
// reach a user.  Delivery is fire-and-forget: a publish failure never aborts
// the auth flow that produced the code.
type NotificationEvent struct {
	Channel     string `json:"channel"`     // email | sms
	Destination string `json:"destination"` // email address or phone number
	Template    string `json:"template"`    // which flow the code belongs to
	Code        string `json:"code"`
	RequestedAt string `json:"requested_at"`
}
