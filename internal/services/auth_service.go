package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/magiclink/internal/models"
)

// CredentialConsumer redeems magic-link credentials
type CredentialConsumer interface {
	ConsumeToken(ctx context.Context, token string) (*models.SanitizedToken, error)
	ConsumeEmailCode(ctx context.Context, email, code string) (*models.SanitizedToken, error)
}

// UserProvisioner maps a redeemed email onto a user account
type UserProvisioner interface {
	ProvisionByEmail(ctx context.Context, email string, meta ProvisionMetadata) (*models.ProvisionedUser, error)
}

// AccessTokenIssuer signs session JWTs
type AccessTokenIssuer interface {
	GenerateAccessToken(userID, email, role string) (string, error)
}

// ExchangeRequest is a credential presented for sign-in. Token wins over
// Email and Code when both are given.
type ExchangeRequest struct {
	Token       string
	Email       string
	Code        string
	UserAgent   string
	ClientIP    string
	Attribution map[string]any
}

// ExchangeResult is the session issued for a redeemed credential
type ExchangeResult struct {
	JWT  string                  `json:"jwt"`
	User *models.ProvisionedUser `json:"user"`
}

// AuthService exchanges credentials for sessions
type AuthService struct {
	consumer CredentialConsumer
	users    UserProvisioner
	tm       AccessTokenIssuer
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(consumer CredentialConsumer, users UserProvisioner, tm AccessTokenIssuer, logger *slog.Logger) *AuthService {
	return &AuthService{
		consumer: consumer,
		users:    users,
		tm:       tm,
		logger:   logger,
	}
}

// Exchange redeems a token or an email/code pair, provisions the user and
// signs a JWT. Invalid, expired and reused credentials all map to
// models.ErrUnauthorized.
func (s *AuthService) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	var (
		record *models.SanitizedToken
		err    error
	)

	switch {
	case req.Token != "":
		record, err = s.consumer.ConsumeToken(ctx, req.Token)
	case req.Email != "" && req.Code != "":
		record, err = s.consumer.ConsumeEmailCode(ctx, req.Email, req.Code)
	default:
		return nil, models.ErrBadRequest
	}
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.ProvisionByEmail(ctx, record.Email, ProvisionMetadata{
		UserAgent:   req.UserAgent,
		ClientIP:    req.ClientIP,
		Attribution: req.Attribution,
	})
	if err != nil {
		return nil, err
	}

	jwt, err := s.tm.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to sign access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	s.logger.Info("credential exchanged",
		slog.String("user_id", user.ID),
		slog.String("token_id", record.ID),
		slog.Bool("new_user", user.IsNew))

	return &ExchangeResult{JWT: jwt, User: user}, nil
}
