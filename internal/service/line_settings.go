package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/config"
	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

const (
	previewLength        = 10
	minChannelSecretSize = 10
)

// LineSettingsService exposes and updates the LINE credentials.
type LineSettingsService struct {
	cfg    *config.LineConfig
	logger *zap.Logger
}

// NewLineSettingsService creates a new settings service over the shared
// credential holder.
func NewLineSettingsService(cfg *config.LineConfig, logger *zap.Logger) *LineSettingsService {
	return &LineSettingsService{cfg: cfg, logger: logger}
}

// Status reports which credentials are set, with short previews only.
func (s *LineSettingsService) Status(_ context.Context) *domain.LineConfigStatus {
	creds := s.cfg.Credentials()
	return &domain.LineConfigStatus{
		HasAccessToken:       creds.ChannelAccessToken != "",
		HasChannelSecret:     creds.ChannelSecret != "",
		AccessTokenPreview:   preview(creds.ChannelAccessToken),
		ChannelSecretPreview: preview(creds.ChannelSecret),
		Source:               creds.Source,
	}
}

// Update validates and persists new credentials. They apply to the next
// gateway call.
func (s *LineSettingsService) Update(_ context.Context, req domain.LineConfigUpdate) error {
	token := strings.TrimSpace(req.ChannelAccessToken)
	secret := strings.TrimSpace(req.ChannelSecret)
	if token == "" || secret == "" {
		return &domain.ErrValidation{Field: "access_token", Message: "access token and channel secret are both required"}
	}
	if len(secret) < minChannelSecretSize {
		return &domain.ErrValidation{Field: "channel_secret", Message: "channel secret is too short"}
	}

	if err := s.cfg.Update(token, secret); err != nil {
		return err
	}
	s.logger.Info("line credentials updated")
	return nil
}

func preview(v string) string {
	if v == "" {
		return ""
	}
	if len(v) > previewLength {
		v = v[:previewLength]
	}
	return v + "..."
}
