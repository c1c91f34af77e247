// Package credentials resolves the API key pair used to authenticate with
// the governance service. A reference is either a direct pair or the name
// of an AWS Secrets Manager secret holding {"apiKey", "apiSecret"}.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Credential types.
const (
	TypeDirect         = "direct"
	TypeSecretsManager = "secretsManager"
)

// Deferred stands in for a direct credential value that is only known at
// apply time. It passes Validate; Resolve rejects it.
const Deferred = "(known after apply)"

// ErrInvalidReference is wrapped by every reference validation error.
var ErrInvalidReference = errors.New("invalid credential reference")

// Ref identifies where the API key pair comes from.
type Ref struct {
	Type       string
	APIKey     string
	APISecret  string
	SecretName string
}

// Direct returns a reference holding the pair inline.
func Direct(apiKey, apiSecret string) Ref {
	return Ref{Type: TypeDirect, APIKey: apiKey, APISecret: apiSecret}
}

// SecretsManager returns a reference to a stored secret.
func SecretsManager(secretName string) Ref {
	return Ref{Type: TypeSecretsManager, SecretName: secretName}
}

// Validate checks that exactly one credential source is described.
func (r Ref) Validate() error {
	switch r.Type {
	case TypeDirect:
		if r.APIKey == "" || r.APISecret == "" {
			return fmt.Errorf("%w: direct credentials need both apiKey and apiSecret", ErrInvalidReference)
		}
		if r.SecretName != "" {
			return fmt.Errorf("%w: direct credentials must not name a secret", ErrInvalidReference)
		}
	case TypeSecretsManager:
		if r.SecretName == "" {
			return fmt.Errorf("%w: secretsManager credentials need a secretName", ErrInvalidReference)
		}
		if r.APIKey != "" || r.APISecret != "" {
			return fmt.Errorf("%w: secretsManager credentials must not carry an inline key pair", ErrInvalidReference)
		}
	default:
		return fmt.Errorf("%w: unknown credential type %q", ErrInvalidReference, r.Type)
	}
	return nil
}

// Pair is a resolved API key pair.
type Pair struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver turns references into key pairs. Secrets may be nil when only
// direct references are used.
type Resolver struct {
	Secrets SecretsAPI
}

// Resolve returns the key pair r refers to.
func (res Resolver) Resolve(ctx context.Context, r Ref) (Pair, error) {
	if err := r.Validate(); err != nil {
		return Pair{}, err
	}

	if r.Type == TypeDirect {
		if r.APIKey == Deferred || r.APISecret == Deferred {
			return Pair{}, errors.New("credentials: direct credentials are not known yet")
		}
		return Pair{APIKey: r.APIKey, APISecret: r.APISecret}, nil
	}

	if res.Secrets == nil {
		return Pair{}, fmt.Errorf("credentials: no secrets manager client configured for secret %q", r.SecretName)
	}

	out, err := res.Secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(r.SecretName),
	})
	if err != nil {
		return Pair{}, fmt.Errorf("credentials: fetch secret %q: %w", r.SecretName, err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		raw = out.SecretBinary
	default:
		return Pair{}, fmt.Errorf("credentials: secret %q has no value", r.SecretName)
	}

	var p Pair
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pair{}, fmt.Errorf("credentials: secret %q is not a JSON key pair: %w", r.SecretName, err)
	}
	if p.APIKey == "" || p.APISecret == "" {
		return Pair{}, fmt.Errorf("credentials: secret %q lacks apiKey or apiSecret", r.SecretName)
	}
	return p, nil
}
