package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCmd(configPath *string) *cobra.Command {
	var (
		longURL string
		visitor string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a short link",
		Long: `Create a short link through the same engine the HTTP server uses.

Example:
  shortlink create --url="https://go.dev/doc/effective_go"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if longURL == "" {
				return errors.New("--url is required")
			}

			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.build(ctx); err != nil {
				return err
			}

			result, err := a.engine.Create(ctx, longURL, visitor)
			if err != nil {
				return err
			}

			status := "existing"
			if result.Created {
				status = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", status, result.Code, result.ShortURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&longURL, "url", "", "long URL to shorten")
	cmd.Flags().StringVar(&visitor, "visitor", "cli", "owner token recorded on the link")
	return cmd
}
