package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/nexus/pkg/auth"
	"github.com/harrisonrobin/nexus/pkg/model"
)

func authCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to tools that use OAuth",
	}
	cmd.AddCommand(authGoogleCmd(opts))
	return cmd
}

func authGoogleCmd(opts *globalOptions) *cobra.Command {
	var connID string
	cmd := &cobra.Command{
		Use:   "google",
		Short: "Run the Google OAuth flow for a Google Tasks connection",
		Long: `Run the Google OAuth flow and obtain a refresh token for Google Tasks.

With --connection the token is stored as that connection's API key.
Otherwise it is printed so it can be passed to 'nexus connection add --api-key'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if connID != "" {
				conn, err := a.creds.Get(connID)
				if err != nil {
					return err
				}
				if conn.Kind != model.KindGoogleTasks {
					return fmt.Errorf("connection %s is a %s connection", connID, conn.Kind)
				}
			}

			oc, err := auth.GoogleConfig(a.cfg.Resolve(a.cfg.Google.ClientSecrets), a.cfg.Google.AuthPort)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			token, err := auth.Authorize(ctx, oc, a.cfg.Google.AuthPort, func(authURL string) {
				fmt.Printf("Open the following link in your browser to authorize Nexus:\n\n%s\n\n", authURL)
			}, a.logger)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			if token.RefreshToken == "" {
				return fmt.Errorf("google did not return a refresh token; revoke the app's access and retry")
			}

			if connID == "" {
				fmt.Printf("Refresh token:\n%s\n", token.RefreshToken)
				return nil
			}
			if _, err := a.creds.Update(connID, func(c *model.Connection) {
				c.APIKey = token.RefreshToken
			}); err != nil {
				return err
			}
			if err := a.creds.Save(); err != nil {
				return err
			}
			fmt.Printf("Authentication successful! Token stored on connection %s; run 'nexus connection test %s' to verify it\n", connID, connID)
			return nil
		},
	}
	cmd.Flags().StringVar(&connID, "connection", "", "Google Tasks connection to store the token on")
	return cmd
}
