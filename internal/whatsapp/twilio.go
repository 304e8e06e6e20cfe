// Package whatsapp – Twilio transport.
package whatsapp

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio REST API this package uses.
// Narrowed to an interface so tests can stub the SDK.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender sends WhatsApp messages through the Twilio API.
type TwilioSender struct {
	api messageCreator
	// from is the provisioned WhatsApp sender, e.g. "whatsapp:+14155238886".
	from string
}

// NewTwilioSender builds a sender from account credentials and the
// provisioned WhatsApp sender address.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: from}
}

// SendMessage delivers body to toNumber over WhatsApp. The Twilio SDK does
// not thread a context through individual calls, so cancellation takes effect
// only between sends; the broadcast path is sequential and checks its context
// per recipient.
func (s *TwilioSender) SendMessage(_ context.Context, toNumber, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo("whatsapp:" + toNumber)
	params.SetBody(body)

	if _, err := s.api.CreateMessage(params); err != nil {
		return fmt.Errorf("whatsapp: send to %s: %w", toNumber, err)
	}
	return nil
}
