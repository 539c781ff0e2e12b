package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/diwise/restmodel/pkg/client"
	"github.com/diwise/restmodel/pkg/config"
	"github.com/diwise/restmodel/pkg/model"
	"github.com/diwise/restmodel/pkg/model/params"
)

func addQueryFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "query parameter as key=value, nested keys use dots (filter.state=open)")
	cmd.Flags().StringSliceVar(&opts.links, "links", nil, "associations to embed in the response")
}

func newAllCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all <Type>",
		Short: "List the entities of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			result, err := q.All(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd, result)
		},
	}

	addQueryFlags(cmd, opts)
	return cmd
}

func newFindCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <Type> <id> [id...]",
		Short: "Fetch entities by id, several ids are fetched in one batch request",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if len(args) == 2 {
				result, err := q.Find(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			}

			ids := make([]any, 0, len(args)-1)
			for _, id := range args[1:] {
				ids = append(ids, id)
			}

			result, err := q.FindMany(cmd.Context(), ids)
			if err != nil {
				return err
			}

			return printJSON(cmd, result)
		},
	}

	addQueryFlags(cmd, opts)
	return cmd
}

func newCountCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count <Type>",
		Short: "Count the entities of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			count, err := q.Count(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd, map[string]int{"count": count})
		},
	}

	addQueryFlags(cmd, opts)
	return cmd
}

func (opts *options) query(ctx context.Context, typeName string) (*model.Query, error) {
	s, err := opts.schema(ctx)
	if err != nil {
		return nil, err
	}

	t, err := s.Lookup(typeName)
	if err != nil {
		return nil, err
	}

	p, err := parseParams(opts.params)
	if err != nil {
		return nil, err
	}

	q := t.Where(p)
	if len(opts.links) > 0 {
		q = q.Links(opts.links...)
	}

	return q, nil
}

func (opts *options) schema(ctx context.Context) (*model.Schema, error) {
	f, err := os.Open(opts.schemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	cfg, err := config.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema file %s: %w", opts.schemaFile, err)
	}

	apiURL := opts.apiURL
	if apiURL == "" {
		apiURL = env.GetVariableOrDefault(ctx, "RESTMODEL_API_URL", "")
	}

	if apiURL == "" {
		return nil, fmt.Errorf("no api url given, use --url or set RESTMODEL_API_URL")
	}

	c := client.New(apiURL, client.Debug(cast.ToString(opts.debug)), client.Tenant(opts.tenant))

	return config.Build(cfg, c)
}

// parseParams turns key=value pairs into parameters. Dotted keys nest, so
// filter.state=open becomes {"filter": {"state": "open"}}.
func parseParams(pairs []string) (params.Params, error) {
	decorators := make([]params.DecoratorFunc, 0, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q is not on the form key=value", pair)
		}

		path := strings.Split(key, ".")
		var nested any = value
		for i := len(path) - 1; i > 0; i-- {
			nested = params.Params{path[i]: nested}
		}

		if p, isMap := nested.(params.Params); isMap {
			decorators = append(decorators, params.Nested(path[0], p))
		} else {
			decorators = append(decorators, params.Set(path[0], value))
		}
	}

	return params.New(decorators...), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
