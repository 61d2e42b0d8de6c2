package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsClient is the subset of the Secrets Manager API used to read tokens.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsProvider reads one field of a JSON secret.
type SecretsProvider struct {
	client   SecretsClient
	secretID string
	field    string
}

// NewSecretsProvider creates a provider for field of secretID.
func NewSecretsProvider(client SecretsClient, secretID, field string) *SecretsProvider {
	return &SecretsProvider{client: client, secretID: secretID, field: field}
}

// Token returns the secret field value.
func (p *SecretsProvider) Token(ctx context.Context) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", p.secretID, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretMissing, p.secretID)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", fmt.Errorf("decode secret %s: %w", p.secretID, err)
	}
	v, ok := fields[p.field].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s in %s", ErrSecretFieldMissing, p.field, p.secretID)
	}
	return v, nil
}
