package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/config"
	"github.com/fennwick/ledgermail/internal/mail"
	"github.com/fennwick/ledgermail/internal/model"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
		Long:  `Authenticate with external services like Gmail.`,
	}

	cmd.AddCommand(authGoogleCmd())

	return cmd
}

func authGoogleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Connect a Gmail account",
		Long: `Run the Google OAuth flow and register the mailbox.

This command will:
1. Print an authorization URL to open in your browser
2. Ask for the code Google shows after you approve access
3. Store the refresh token so the sweep can read your receipts

You can run this multiple times to register more mailboxes.`,
		RunE: runAuthGoogle,
	}
}

func runAuthGoogle(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	google, err := config.LoadGoogleConfig()
	if err != nil {
		return common.NewUserError(
			"Google OAuth credentials are not configured; set google.client_id and google.client_secret", err)
	}

	oauthCfg := mail.OAuthConfig(google.ClientID, google.ClientSecret)

	fmt.Println("Open this URL in your browser and approve read access to your mailbox:")
	fmt.Println()
	fmt.Println("  " + mail.AuthURL(oauthCfg))
	fmt.Println()
	fmt.Print("Paste the authorization code here: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("no authorization code provided")
	}

	refreshToken, err := mail.ExchangeCode(ctx, oauthCfg, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	email, err := mail.Profile(ctx, google.ClientID, google.ClientSecret, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to fetch mailbox profile: %w", err)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	user, err := store.UpsertUser(ctx, email, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	// First registration gets the starter category set
	categories, err := store.GetCategories(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		for _, name := range model.DefaultCategories {
			if _, err := store.CreateCategory(ctx, user.ID, name); err != nil {
				return fmt.Errorf("failed to seed category %q: %w", name, err)
			}
		}
	}

	slog.Info("mailbox connected", "email", email, "user_id", user.ID)
	return nil
}
