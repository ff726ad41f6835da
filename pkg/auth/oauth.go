package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/tasks/v1"
)

// GoogleScopes are the scopes a Google Tasks connection needs.
var GoogleScopes = []string{tasks.TasksReadonlyScope}

// GoogleConfig creates an oauth2.Config from a client secrets file. A localhost
// redirect is pinned to port so the callback listener can capture it.
func GoogleConfig(clientSecretsFile, port string) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", clientSecretsFile, err)
	}

	config, err := google.ConfigFromJSON(b, GoogleScopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectFor(config.RedirectURL, port)
	return config, nil
}

func redirectFor(configured, port string) string {
	if configured == "" || configured == "urn:ietf:wg:oauth:2.0:oob" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", port)
	}
	parsed, err := url.Parse(configured)
	if err != nil {
		return configured
	}
	if parsed.Hostname() == "localhost" || parsed.Hostname() == "127.0.0.1" {
		parsed.Host = net.JoinHostPort(parsed.Hostname(), port)
		return parsed.String()
	}
	return configured
}

// TokenSource returns a refreshing token source for a stored refresh token.
func TokenSource(ctx context.Context, config *oauth2.Config, refreshToken string) (oauth2.TokenSource, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}
	return config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}), nil
}

// Authorize runs the authorization code flow through a local callback server and
// returns the token. prompt receives the URL the user has to open.
func Authorize(ctx context.Context, config *oauth2.Config, port string, prompt func(authURL string), logger *zap.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", port, err)
	}
	defer listener.Close()

	state := fmt.Sprintf("nexus-%d", time.Now().UnixNano())
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("waiting for OAuth2 redirect", zap.String("redirect", config.RedirectURL))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background())

	// AccessTypeOffline is what makes Google return a refresh token.
	prompt(config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")))

	select {
	case code := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchangeCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, errors.New("authorization timed out, please try again")
	}
}
