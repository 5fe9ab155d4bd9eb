package mail

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// OAuthConfig builds the OAuth2 config used for the interactive consent flow.
// The out-of-band style redirect keeps the flow copy-paste friendly for CLI use.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
		RedirectURL:  "http://localhost:8089/callback",
	}
}

// AuthURL returns the consent URL the user must visit to grant access.
// offline access with forced consent guarantees a refresh token comes back.
func AuthURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode trades an authorization code for a refresh token.
func ExchangeCode(ctx context.Context, cfg *oauth2.Config, code string) (string, error) {
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return "", fmt.Errorf("authorization response contained no refresh token")
	}
	return token.RefreshToken, nil
}

// Profile returns the email address of the account behind a refresh token.
func Profile(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error) {
	client, err := NewGmailClient(ctx, clientID, clientSecret, refreshToken)
	if err != nil {
		return "", err
	}

	profile, err := client.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get gmail profile: %w", err)
	}

	return profile.EmailAddress, nil
}
