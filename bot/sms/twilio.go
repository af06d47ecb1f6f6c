package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/m3rciful/crewbot/core/logger"
	"log/slog"
)

// Config holds Twilio credentials and the sender number.
type Config struct {
	AccountSID string `yaml:"account_sid" envconfig:"TWILIO_ACCOUNT_SID" validate:"required"`
	AuthToken  string `yaml:"auth_token" envconfig:"TWILIO_AUTH_TOKEN" validate:"required"`
	From       string `yaml:"from" envconfig:"TWILIO_FROM" validate:"required,e164"`
}

// TwilioSender delivers codes through the Twilio messaging API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender builds a sender from credentials.
func NewTwilioSender(cfg Config) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client, from: cfg.From}
}

// SendCode sends the one-time code as an SMS. The code itself is never
// logged.
func (s *TwilioSender) SendCode(ctx context.Context, phone string, code int) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(phone)
	params.SetBody(fmt.Sprintf("Your crewbot confirmation code: %04d", code))

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		logger.Error(ctx, "sms", "send.fail",
			slog.String("phone", phone),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("twilio send: %w", err)
	}

	attrs := []slog.Attr{slog.String("phone", phone)}
	if resp.Sid != nil {
		attrs = append(attrs, slog.String("sid", *resp.Sid))
	}
	logger.Info(ctx, "sms", "send.ok", attrs...)
	return nil
}
