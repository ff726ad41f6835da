package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/nexus/pkg/auth"
	"github.com/harrisonrobin/nexus/pkg/model"
)

// ErrNoClientSecrets is returned when no OAuth client is configured.
var ErrNoClientSecrets = errors.New("google client secrets are not configured")

// NewService creates a Google Tasks service for conn. The connection's API key holds
// the OAuth refresh token; a non-empty BaseURL overrides the API endpoint. A non-nil
// transport carries both the API calls and token refreshes.
func NewService(ctx context.Context, config *oauth2.Config, transport http.RoundTripper, conn model.Connection) (*tasks.Service, error) {
	if config == nil {
		return nil, ErrNoClientSecrets
	}
	if transport != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: transport})
	}
	ts, err := auth.TokenSource(ctx, config, conn.APIKey)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if conn.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(conn.BaseURL))
	}
	srv, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Tasks client: %w", err)
	}
	return srv, nil
}
