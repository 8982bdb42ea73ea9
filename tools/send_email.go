package tools

import (
	"context"
	"encoding/json"

	"github.com/petasbytes/ctxassist/internal/mail"
)

// SendEmailName is the only function the assistant may call.
const SendEmailName = "send_email"

type SendEmailInput struct {
	To      string `json:"to" jsonschema_description:"The email address of the recipient."`
	Subject string `json:"subject" jsonschema_description:"The subject line of the email."`
	Body    string `json:"body" jsonschema_description:"The main content/body of the email."`
}

var SendEmailInputSchema = GenerateSchema[SendEmailInput]()

// SendEmailDefinition wires send_email to transport. The recipient is passed
// through as given; no address validation happens here.
func SendEmailDefinition(transport mail.Transport) ToolDefinition {
	return ToolDefinition{
		Name:        SendEmailName,
		Description: "Sends an email to a specified recipient. Use this for any user request that involves sending information to an email address.",
		InputSchema: SendEmailInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			var in SendEmailInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", ToolError{Code: ErrCodeInvalidInput, Message: err.Error()}
			}
			return transport.Send(ctx, mail.Message{To: in.To, Subject: in.Subject, Body: in.Body})
		},
	}
}
