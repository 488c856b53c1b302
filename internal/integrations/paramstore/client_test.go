package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves parameters from a map; names not in the map are not found.
type fakeAPI struct {
	vals   map[string]*string
	getErr error
	names  []string
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.names = append(f.names, *in.Name)
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.vals[*in.Name]
	if !ok {
		return nil, &types.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: v}}, nil
}

func strPtr(s string) *string { return &s }

func TestLookup_HappyPath(t *testing.T) {
	api := &fakeAPI{vals: map[string]*string{"/tutor/app_base_url": strPtr("http://app")}}
	client, err := New(api)
	require.NoError(t, err)
	v, found, err := client.lookup(context.Background(), " /tutor/app_base_url ")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "http://app", v)
	require.Equal(t, []string{"/tutor/app_base_url"}, api.names)
}

func TestLookup_NotFound(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	v, found, err := client.lookup(context.Background(), "/tutor/missing")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, v)
}

func TestLookup_MissingValue(t *testing.T) {
	api := &fakeAPI{vals: map[string]*string{"p": nil}}
	client, err := New(api)
	require.NoError(t, err)
	_, _, err = client.lookup(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestLookup_ApiError(t *testing.T) {
	client, err := New(&fakeAPI{getErr: errors.New("boom")})
	require.NoError(t, err)
	_, _, err = client.lookup(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestLookup_ClientNotInitialized(t *testing.T) {
	_, _, err := (&Client{}).lookup(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestLookup_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, _, err = client.lookup(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestResolveEndpoints_ReadsBothParameters(t *testing.T) {
	api := &fakeAPI{vals: map[string]*string{
		"/tutor/prod/app_base_url":    strPtr(" https://tutor.example.com "),
		"/tutor/prod/ingest_base_url": strPtr("https://ingest.example.com"),
	}}
	client, err := New(api)
	require.NoError(t, err)

	eps, err := client.ResolveEndpoints(context.Background(), "/tutor/prod/")
	require.NoError(t, err)
	require.Equal(t, Endpoints{
		AppBaseURL:    "https://tutor.example.com",
		IngestBaseURL: "https://ingest.example.com",
	}, eps)
}

func TestResolveEndpoints_MissingParametersStayEmpty(t *testing.T) {
	api := &fakeAPI{vals: map[string]*string{
		"/tutor/ingest_base_url": strPtr("https://ingest.example.com"),
	}}
	client, err := New(api)
	require.NoError(t, err)

	eps, err := client.ResolveEndpoints(context.Background(), "/tutor")
	require.NoError(t, err)
	require.Empty(t, eps.AppBaseURL)
	require.Equal(t, "https://ingest.example.com", eps.IngestBaseURL)
}

func TestResolveEndpoints_Errors(t *testing.T) {
	client, err := New(&fakeAPI{getErr: errors.New("throttled")})
	require.NoError(t, err)
	_, err = client.ResolveEndpoints(context.Background(), "/tutor")
	require.ErrorContains(t, err, "throttled")

	_, err = client.ResolveEndpoints(context.Background(), " / ")
	require.ErrorContains(t, err, "prefix is required")
}
