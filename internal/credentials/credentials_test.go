package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	values map[string]*secretsmanager.GetSecretValueOutput
	err    error
	calls  int
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return out, nil
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ref     Ref
		wantErr bool
	}{
		{"direct", Direct("k", "s"), false},
		{"secret", SecretsManager("blueprint/acme"), false},
		{"direct missing secret", Direct("k", ""), true},
		{"direct with secret name", Ref{Type: TypeDirect, APIKey: "k", APISecret: "s", SecretName: "x"}, true},
		{"secret missing name", SecretsManager(""), true},
		{"secret with inline key", Ref{Type: TypeSecretsManager, SecretName: "x", APIKey: "k"}, true},
		{"unknown type", Ref{Type: "vault"}, true},
		{"empty", Ref{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidReference)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestResolveDirect(t *testing.T) {
	fake := &fakeSecrets{}
	p, err := Resolver{Secrets: fake}.Resolve(context.Background(), Direct("key", "secret"))
	require.NoError(t, err)
	assert.Equal(t, Pair{APIKey: "key", APISecret: "secret"}, p)
	assert.Zero(t, fake.calls, "direct credentials must not touch the secret store")
}

func TestResolveSecretsManager(t *testing.T) {
	fake := &fakeSecrets{values: map[string]*secretsmanager.GetSecretValueOutput{
		"blueprint/acme":   {SecretString: aws.String(`{"apiKey":"k1","apiSecret":"s1"}`)},
		"blueprint/binary": {SecretBinary: []byte(`{"apiKey":"k2","apiSecret":"s2"}`)},
		"blueprint/bad":    {SecretString: aws.String(`not json`)},
		"blueprint/half":   {SecretString: aws.String(`{"apiKey":"k3"}`)},
		"blueprint/empty":  {},
	}}
	res := Resolver{Secrets: fake}
	ctx := context.Background()

	p, err := res.Resolve(ctx, SecretsManager("blueprint/acme"))
	require.NoError(t, err)
	assert.Equal(t, "k1", p.APIKey)
	assert.Equal(t, "s1", p.APISecret)

	p, err = res.Resolve(ctx, SecretsManager("blueprint/binary"))
	require.NoError(t, err)
	assert.Equal(t, "k2", p.APIKey)

	for _, name := range []string{"blueprint/bad", "blueprint/half", "blueprint/empty", "blueprint/missing"} {
		_, err := res.Resolve(ctx, SecretsManager(name))
		assert.Error(t, err, name)
	}
}

func TestResolveWithoutClient(t *testing.T) {
	_, err := Resolver{}.Resolve(context.Background(), SecretsManager("blueprint/acme"))
	require.Error(t, err)
}

func TestResolveClientError(t *testing.T) {
	boom := errors.New("throttled")
	_, err := Resolver{Secrets: &fakeSecrets{err: boom}}.Resolve(context.Background(), SecretsManager("x"))
	require.ErrorIs(t, err, boom)
}

func TestResolveDeferred(t *testing.T) {
	ref := Direct(Deferred, "s")
	require.NoError(t, ref.Validate())
	_, err := Resolver{}.Resolve(context.Background(), ref)
	require.Error(t, err)
}
