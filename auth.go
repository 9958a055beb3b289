package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"racecurve/internal/store"
	"racecurve/internal/strava"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize racecurve to read your Strava activities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.ValidateStravaClient(); err != nil {
			return err
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		a := &strava.Authorizer{
			Config: strava.NewOAuthConfig(cfg.Strava.ClientID, cfg.Strava.ClientSecret),
			Port:   cfg.Strava.CallbackPort,
			Prompt: func(url string) {
				fmt.Fprintf(os.Stderr, "\nOpen this URL in your browser to authorize:\n\n  %s\n\nWaiting for authorization...\n", url)
			},
		}
		res, err := a.Authorize(ctx)
		if err != nil {
			return err
		}

		if err := db.SaveAuth(ctx, &store.Auth{
			Provider:     store.ProviderStrava,
			AthleteID:    res.AthleteID,
			AccessToken:  res.Token.AccessToken,
			RefreshToken: res.Token.RefreshToken,
			ExpiresAt:    res.Token.Expiry,
		}); err != nil {
			return eris.Wrap(err, "save auth")
		}
		fmt.Fprintf(os.Stderr, "Authorized as athlete %s\n", res.AthleteID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
