package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/magiclink/pkg/logger"
)

// sesAPI is the subset of the SES client used for delivery.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender sends emails using AWS SES
type SESSender struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESSender creates a new AWS SES sender
func NewSESSender(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESSender, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESSender{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Send delivers msg through SES. Text and HTML parts are only attached when set.
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = s.fromAddress
	}
	if from == "" {
		return ErrNoSender
	}

	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent via SES",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
