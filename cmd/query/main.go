package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/meili"
	"github.com/urfave/cli/v2"
)

const defaultTimeout = 5 * time.Second

func main() {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	app := &cli.App{
		Name:  "query",
		Usage: "Execute search queries against an index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "index",
				Aliases:  []string{"i"},
				Usage:    "Index name",
				EnvVars:  []string{"MEILI_INDEX"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Search engine base URL; read from MEILI_HOST when no secret is given",
				EnvVars: []string{"MEILI_HOST"},
			},
			&cli.StringFlag{
				Name:    "secret-arn",
				Usage:   "ARN of AWS Secrets Manager secret containing host and api_key",
				EnvVars: []string{"MEILI_SECRET_ARN"},
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Query string to search for; positional arg is a fallback",
			},
			&cli.IntFlag{
				Name:    "page",
				Aliases: []string{"p"},
				Usage:   "Zero-based page number",
			},
			&cli.IntFlag{
				Name:    "size",
				Aliases: []string{"s"},
				Usage:   "Page size",
				Value:   searchodm.DefaultPageSize,
			},
			&cli.StringSliceFlag{
				Name:  "sort",
				Usage: "Sort in field:asc or field:desc format; repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "Filter expression such as 'genres = Drama'; repeated filters are ANDed",
			},
			&cli.StringSliceFlag{
				Name:  "facet",
				Usage: "Attribute to compute a facet distribution for; repeatable",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for the search request",
				Value: defaultTimeout,
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func runAction(c *cli.Context) error {
	ctx := c.Context

	text := strings.TrimSpace(c.String("query"))
	if text == "" && c.NArg() > 0 {
		text = strings.TrimSpace(c.Args().First())
	}

	indexName := strings.TrimSpace(c.String("index"))

	timeout := c.Duration("timeout")
	if timeout <= 0 {
		slog.WarnContext(ctx, "timeout must be positive; using default", "timeout", timeout, "default", defaultTimeout)
		timeout = defaultTimeout
	}

	query, err := buildQuery(text, c.Int("page"), c.Int("size"), c.StringSlice("sort"), c.StringSlice("filter"), c.StringSlice("facet"))
	if err != nil {
		return err
	}

	fetchSecrets, err := secretsFrom(ctx, c.String("secret-arn"), c.String("host"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	translator := searchodm.NewTranslator(indexName)
	req, err := translator.SearchRequest(query)
	if err != nil {
		return errors.Wrap(err, "invalid query")
	}

	slog.InfoContext(ctx, "executing query",
		"index", indexName,
		"query", text,
		"page", query.Pageable().Page,
		"size", query.Pageable().Size,
		"timeout", timeout,
	)

	res, err := meili.NewTransport(fetchSecrets).Search(ctx, indexName, req)
	if err != nil {
		return errors.Wrap(err, "search failed")
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal results")
	}
	fmt.Println(string(data))
	return nil
}

func secretsFrom(ctx context.Context, secretArn, host string) (meili.FetchSecrets, error) {
	secretArn = strings.TrimSpace(secretArn)
	switch {
	case secretArn != "":
		slog.InfoContext(ctx, "using AWS Secrets Manager for credentials", "secret_arn", secretArn)
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load AWS config")
		}
		return meili.AWSSecretsFromARN(ctx, secretsmanager.NewFromConfig(cfg), secretArn), nil
	case host != "":
		return meili.StaticSecrets(host, os.Getenv("MEILI_API_KEY")), nil
	default:
		return meili.EnvSecrets(), nil
	}
}

// buildQuery assembles the query from flag values. Filters are parsed up front so
// syntax errors surface before any request is made.
func buildQuery(text string, page, size int, sorts, filters, facets []string) (searchodm.Query, error) {
	b := searchodm.NewQuery().WithPageable(searchodm.PageRequest(page, size))
	if text != "" {
		b = b.WithQ(text)
	}

	for _, raw := range sorts {
		order, err := parseSort(raw)
		if err != nil {
			return searchodm.Query{}, err
		}
		b = b.WithSort(searchodm.Sort{order})
	}

	exprs := make([]searchodm.Expression, 0, len(filters))
	for _, raw := range filters {
		expr, err := searchodm.ParseFilter(raw)
		if err != nil {
			return searchodm.Query{}, errors.Wrapf(err, "invalid filter %q", raw)
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) > 0 {
		b = b.WithFilterExpr(searchodm.And(exprs...))
	}

	if len(facets) > 0 {
		b = b.WithFacets(facets...)
	}
	return b.Build(), nil
}

func parseSort(raw string) (searchodm.Order, error) {
	field, dir, _ := strings.Cut(strings.TrimSpace(raw), ":")
	field = strings.TrimSpace(field)
	if field == "" {
		return searchodm.Order{}, errors.Newf("sort field cannot be empty: %q", raw)
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
		return searchodm.Order{Property: field, Direction: searchodm.DirAsc}, nil
	case "desc":
		return searchodm.Order{Property: field, Direction: searchodm.DirDesc}, nil
	default:
		return searchodm.Order{}, errors.Newf("sort direction must be asc or desc: %q", raw)
	}
}
