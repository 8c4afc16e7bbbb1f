package meili

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/cockroachdb/errors"
)

// Secrets holds the engine's address and credentials.
type Secrets struct {
	// Host is the base URL of the engine, e.g. http://localhost:7700.
	Host string `json:"host"`
	// APIKey is sent as a bearer token. It may be empty for an unprotected instance.
	APIKey string `json:"api_key"`
}

// FetchSecrets is a function type that retrieves the engine's credentials.
// It allows for different secret retrieval strategies (static, environment variables, etc.).
type FetchSecrets func() (Secrets, error)

// StaticSecrets returns a FetchSecrets function that provides static credentials.
func StaticSecrets(host, apiKey string) FetchSecrets {
	return func() (Secrets, error) {
		return Secrets{Host: host, APIKey: apiKey}, nil
	}
}

// EnvSecrets reads MEILI_HOST and MEILI_API_KEY.
func EnvSecrets() FetchSecrets {
	return func() (Secrets, error) {
		host := os.Getenv("MEILI_HOST")
		if host == "" {
			return Secrets{}, errors.New("MEILI_HOST environment variable is not set")
		}
		return Secrets{Host: host, APIKey: os.Getenv("MEILI_API_KEY")}, nil
	}
}

// SecretsManagerClient defines the interface for AWS Secrets Manager operations.
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecrets returns a FetchSecrets function that reads the secret stored at
// "{environment}/meilisearch". The secret holds JSON with host and api_key fields.
func AWSSecrets(ctx context.Context, client SecretsManagerClient, env string) FetchSecrets {
	secretPath := env + "/meilisearch"
	return func() (Secrets, error) {
		return getSecret(ctx, client, secretPath, "at path "+secretPath)
	}
}

// AWSSecretsFromARN returns a FetchSecrets function that reads the secret with the
// given ARN. The secret holds JSON with host and api_key fields.
func AWSSecretsFromARN(ctx context.Context, client SecretsManagerClient, secretArn string) FetchSecrets {
	return func() (Secrets, error) {
		return getSecret(ctx, client, secretArn, "with ARN "+secretArn)
	}
}

func getSecret(ctx context.Context, client SecretsManagerClient, id, where string) (Secrets, error) {
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return Secrets{}, errors.Wrapf(err, "failed to get secret from AWS Secrets Manager %s", where)
	}

	if result.SecretString == nil {
		return Secrets{}, errors.Newf("secret %s has no string value", where)
	}

	var secrets Secrets
	if err := json.Unmarshal([]byte(aws.ToString(result.SecretString)), &secrets); err != nil {
		return Secrets{}, errors.Wrapf(err, "failed to unmarshal secret JSON %s", where)
	}
	return secrets, nil
}
