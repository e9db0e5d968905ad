package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService defines the interface for sending emails
type EmailService interface {
	SendTwoFactorCode(ctx context.Context, email, code string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendTwoFactorCode delivers the one-time sign-in code. The code itself is
// never logged; the stored hash is the only server-side copy.
func (s *AWSSESEmailService) SendTwoFactorCode(ctx context.Context, email, code string) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 20px; background-color: #f8f9fa; border-radius: 4px; margin: 20px 0; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your Sign-In Code</h1>
        </div>
        <p>Enter this code to finish signing in:</p>
        <div class="code">%s</div>
        <div class="warning">
            <strong>⚠️ Security Notice:</strong> This code will expire in 20 minutes. We will never ask you for this code by phone or email.
        </div>
        <p><strong>Didn't try to sign in?</strong><br>
        If you didn't request this code, someone may know your password. We recommend changing it.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, code)

	textBody := fmt.Sprintf(`Your Sign-In Code

Enter this code to finish signing in:

%s

⚠️  Security Notice: This code will expire in 20 minutes. We will never ask you for this code by phone or email.

Didn't try to sign in?
If you didn't request this code, someone may know your password. We recommend changing it.

This is an automated message. Please do not reply to this email.
`, code)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your sign-in code"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send two-factor code via SES",
			slog.String("email", email),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("two-factor code email sent",
		slog.String("email", email),
		slog.String("message_id", *result.MessageId))

	return nil
}
