package main

import (
	"context"
	"fmt"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/spf13/cobra"
)

const (
	appName string = "restmodel"
)

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	if err := newRootCmd(appVersion).ExecuteContext(ctx); err != nil {
		log.Error("command failed", "err", err.Error())
		fmt.Fprintln(os.Stderr, err)
		cleanup()
		os.Exit(1)
	}
}

type options struct {
	schemaFile string
	apiURL     string
	tenant     string
	debug      bool
	params     []string
	links      []string
}

func newRootCmd(version string) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Query a JSON REST API through a declared entity schema",
		Long: `restmodel loads entity types and their associations from a YAML schema and
queries a REST API with them, printing the resulting entities as JSON.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.schemaFile, "schema", "schema.yaml", "YAML file declaring the entity types")
	flags.StringVar(&opts.apiURL, "url", "", "base url of the REST API (defaults to RESTMODEL_API_URL)")
	flags.StringVar(&opts.tenant, "tenant", "", "tenant sent with every request")
	flags.BoolVar(&opts.debug, "debug", false, "log failed requests")

	rootCmd.AddCommand(newAllCmd(opts))
	rootCmd.AddCommand(newFindCmd(opts))
	rootCmd.AddCommand(newCountCmd(opts))
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd(version))

	return rootCmd
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", appName, version)
		},
	}
}
