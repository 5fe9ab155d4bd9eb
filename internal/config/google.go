package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/fennwick/ledgermail/internal/common"
)

// GoogleConfig holds the OAuth client used for Gmail access.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// LoadGoogleConfig loads the Google OAuth client configuration. Precedence:
// 1. Viper configuration (from config file or LEDGERMAIL_ env vars)
// 2. Direct environment variables (GOOGLE_*)
func LoadGoogleConfig() (*GoogleConfig, error) {
	cfg := &GoogleConfig{
		ClientID:     viper.GetString("google.client_id"),
		ClientSecret: viper.GetString("google.client_secret"),
	}

	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: google.client_id and google.client_secret are required for Gmail access", common.ErrMissingConfig)
	}

	return cfg, nil
}
