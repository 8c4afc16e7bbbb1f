package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/internal/ddb"
	"github.com/letmevibethatforyou/searchodm/internal/movies"
	"github.com/letmevibethatforyou/searchodm/mapping"
	"github.com/urfave/cli/v2"
)

// PutItemAPI is the DynamoDB call the generator makes.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

func insertMovie(ctx context.Context, client PutItemAPI, engine *mapping.Engine, tableName string, movie movies.Movie) error {
	doc, err := mapping.ToDocument(engine, &movie)
	if err != nil {
		return errors.Wrap(err, "failed to map movie")
	}

	id := movie.ID.String()
	item, err := ddb.Item(movies.IndexName, id, doc)
	if err != nil {
		return err
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      item,
	})
	if err != nil {
		return errors.Wrap(err, "failed to put item in DynamoDB")
	}

	slog.InfoContext(ctx, "Successfully inserted movie",
		"id", id,
		"title", movie.Title,
		"year", movie.Year,
		"genres", movie.Genres,
		"rating", movie.Rating.String(),
	)

	return nil
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	env := c.String("env")
	tableName := c.String("table-name")
	count := c.Int("count")

	slog.InfoContext(ctx, "Starting movie generator",
		"environment", env,
		"table", tableName,
		"count", count,
	)

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load AWS config")
	}

	client := dynamodb.NewFromConfig(cfg)
	engine := movies.NewEngine()

	for i := range count {
		if err := insertMovie(ctx, client, engine, tableName, movies.Random()); err != nil {
			return errors.Wrapf(err, "failed to insert movie %d", i+1)
		}
	}

	slog.InfoContext(ctx, "Successfully generated and inserted all movies", "count", count)
	return nil
}

func main() {
	// Configure JSON logging for AWS environments
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	app := &cli.App{
		Name:  "generator",
		Usage: "Generate random movies and insert them into DynamoDB for indexing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Environment name",
				EnvVars:  []string{"ENVIRONMENT"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "table-name",
				Aliases:  []string{"t"},
				Usage:    "DynamoDB table name",
				EnvVars:  []string{"TABLE_NAME"},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "Number of movies to generate",
				Value:   1,
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}
