package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/spf13/cobra"

	"github.com/diwise/restmodel/internal/pkg/fakeapi"
)

func newServeCmd() *cobra.Command {
	var fixtures, port, policies string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve JSON fixtures as a REST API",
		Long: `serve exposes the records of a JSON fixture file, {"posts": [...], "users": [...]},
with the envelopes and paths that the query commands expect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.GetFromContext(ctx)

			f, err := os.Open(fixtures)
			if err != nil {
				return fmt.Errorf("failed to open fixtures: %w", err)
			}
			defer f.Close()

			store, err := fakeapi.LoadStore(f)
			if err != nil {
				return err
			}

			options := []fakeapi.Option{}

			if policies != "" {
				authenticator, err := loadAuthenticator(ctx, policies)
				if err != nil {
					return err
				}
				options = append(options, fakeapi.WithAuthenticator(authenticator))
			}

			if port == "" {
				port = env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080")
			}

			log.Info("starting to listen for connections", "port", port, "collections", store.Collections())

			return http.ListenAndServe(":"+port, fakeapi.New(store, log, options...))
		},
	}

	cmd.Flags().StringVar(&fixtures, "fixtures", "fixtures.json", "JSON file with the records to serve")
	cmd.Flags().StringVar(&policies, "policies", "", "rego file with authorization policies (data.example.authz.allow)")
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (defaults to SERVICE_PORT or 8080)")

	return cmd
}

func loadAuthenticator(ctx context.Context, policyFile string) (fakeapi.Authenticator, error) {
	f, err := os.Open(policyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open policies: %w", err)
	}
	defer f.Close()

	authenticator, err := fakeapi.NewAuthenticator(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to create api authenticator: %w", err)
	}

	return authenticator, nil
}
