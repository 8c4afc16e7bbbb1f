package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
	"github.com/letmevibethatforyou/searchodm/internal/ddb"
	"github.com/letmevibethatforyou/searchodm/meili"
	"github.com/urfave/cli/v2"
)

type Handler struct {
	tableName string
	transport searchodm.Transport
}

func NewHandler(tableName string, transport searchodm.Transport) *Handler {
	return &Handler{
		tableName: tableName,
		transport: transport,
	}
}

func (h *Handler) HandleDynamoDBEvent(ctx context.Context, e ddb.DynamoDBEvent) error {
	slog.InfoContext(ctx, "Processing DynamoDB stream records", "table", h.tableName, "record_count", len(e.Records))

	for _, record := range e.Records {
		if err := h.processRecord(ctx, record); err != nil {
			slog.ErrorContext(ctx, "Error processing record", "event_id", record.EventID, "error", err)
			return err
		}
	}

	return nil
}

func (h *Handler) processRecord(ctx context.Context, record ddb.DynamoDBEventRecord) error {
	switch ddb.DynamoDBOperationType(record.EventName) {
	case ddb.DynamoDBOperationTypeInsert, ddb.DynamoDBOperationTypeModify:
		if record.Change.NewImage == nil {
			slog.WarnContext(ctx, "No new image for insert/modify operation, skipping record")
			return nil
		}

		parsedRecord, err := ddb.UnmarshalRecord(record.Change.NewImage)
		if err != nil {
			slog.WarnContext(ctx, "Failed to unmarshal record, skipping", "error", err)
			return nil
		}

		if parsedRecord.ID == "" {
			slog.WarnContext(ctx, "Missing ID (pk) in record, skipping record")
			return nil
		}
		if parsedRecord.IndexName == "" {
			slog.WarnContext(ctx, "Missing IndexName (sk) in record, skipping record")
			return nil
		}
		if parsedRecord.Object == nil {
			slog.WarnContext(ctx, "Missing Object in record, skipping record", "id", parsedRecord.ID, "index", parsedRecord.IndexName)
			return nil
		}

		slog.InfoContext(ctx, "Indexing document", "id", parsedRecord.ID, "index", parsedRecord.IndexName)
		return h.transport.UpsertDocuments(ctx, parsedRecord.IndexName, []*document.Document{parsedRecord.Document()})

	case ddb.DynamoDBOperationTypeRemove:
		parsedRecord, err := ddb.UnmarshalRecord(record.Change.Keys)
		if err != nil {
			slog.WarnContext(ctx, "Failed to unmarshal keys for delete operation, skipping", "error", err)
			return nil
		}

		if parsedRecord.ID == "" || parsedRecord.IndexName == "" {
			slog.WarnContext(ctx, "Missing ID or IndexName in delete record, skipping record")
			return nil
		}

		slog.InfoContext(ctx, "Deleting document", "id", parsedRecord.ID, "index", parsedRecord.IndexName)
		return h.transport.DeleteDocuments(ctx, parsedRecord.IndexName, []string{parsedRecord.ID})

	default:
		slog.InfoContext(ctx, "Ignoring event type", "event_type", record.EventName)
		return nil
	}
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	app := &cli.App{
		Name:  "dynamodb-index-sync",
		Usage: "Sync DynamoDB stream events to the search engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "table-name",
				Usage:    "DynamoDB table name to sync from",
				EnvVars:  []string{"TABLE_NAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name for AWS Secrets Manager (takes precedence over host/key flags)",
				EnvVars: []string{"ENV", "ENVIRONMENT"},
			},
			&cli.StringFlag{
				Name:    "meili-host",
				Usage:   "Search engine base URL",
				EnvVars: []string{"MEILI_HOST"},
			},
			&cli.StringFlag{
				Name:    "meili-api-key",
				Usage:   "Search engine API key",
				EnvVars: []string{"MEILI_API_KEY"},
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
	tableName := c.String("table-name")
	env := c.String("env")
	host := c.String("meili-host")
	apiKey := c.String("meili-api-key")

	slog.InfoContext(ctx, "Starting DynamoDB to search index sync", "table", tableName, "environment", env)

	var fetchSecrets meili.FetchSecrets
	switch {
	case env != "":
		slog.InfoContext(ctx, "Using AWS Secrets Manager for credentials", "environment", env)

		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load AWS config", "error", err)
			return err
		}
		fetchSecrets = meili.AWSSecrets(ctx, secretsmanager.NewFromConfig(cfg), env)
	case host != "":
		slog.InfoContext(ctx, "Using static credentials from flags")
		fetchSecrets = meili.StaticSecrets(host, apiKey)
	default:
		slog.InfoContext(ctx, "Using environment variables for credentials")
		fetchSecrets = meili.EnvSecrets()
	}

	handler := NewHandler(tableName, meili.NewTransport(fetchSecrets))

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		slog.InfoContext(ctx, "Running in Lambda environment")
		lambda.Start(handler.HandleDynamoDBEvent)
	} else {
		slog.InfoContext(ctx, "Function cannot run outside of AWS Lambda environment")
	}

	return nil
}
