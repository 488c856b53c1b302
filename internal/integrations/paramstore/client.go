package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	appBaseURLParam    = "/app_base_url"
	ingestBaseURLParam = "/ingest_base_url"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Client reads deployment settings from AWS SSM Parameter Store.
type Client struct {
	api ssmAPI
}

// Endpoints are the backend base URLs published for a deployment. Empty fields
// were not published.
type Endpoints struct {
	AppBaseURL    string
	IngestBaseURL string
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// ResolveEndpoints reads the base URLs stored under prefix. Parameters that do
// not exist are left empty so callers can fall back to their defaults.
func (c *Client) ResolveEndpoints(ctx context.Context, prefix string) (Endpoints, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return Endpoints{}, errors.New("paramstore: prefix is required")
	}
	app, _, err := c.lookup(ctx, prefix+appBaseURLParam)
	if err != nil {
		return Endpoints{}, err
	}
	ingest, _, err := c.lookup(ctx, prefix+ingestBaseURLParam)
	if err != nil {
		return Endpoints{}, err
	}
	return Endpoints{
		AppBaseURL:    strings.TrimSpace(app),
		IngestBaseURL: strings.TrimSpace(ingest),
	}, nil
}

func (c *Client) lookup(ctx context.Context, name string) (string, bool, error) {
	if c.api == nil {
		return "", false, errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", false, errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, true, nil
}
