package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/sheets/v4"
)

const (
	// LocalhostAuthPort is the port the local web server listens on to
	// capture the OAuth redirect.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// Scopes are the permissions a sync run needs: read/write events and
// read/write the task spreadsheet.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
	sheets.SpreadsheetsScope,
}

// Provider hands out authorized HTTP clients.
type Provider struct {
	// CredentialsFile is either an OAuth client secret ("installed" app) or a
	// service account key.
	CredentialsFile string
	// TokenFile caches the user's OAuth token between runs.
	TokenFile string
	// Interactive allows the browser flow when no token is cached. Scheduled
	// runs leave it off and fail instead of waiting for a human.
	Interactive bool
}

// Client returns an authorized *http.Client for Scopes.
func (p *Provider) Client(ctx context.Context) (*http.Client, error) {
	b, err := os.ReadFile(p.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", p.CredentialsFile, err)
	}

	if isServiceAccount(b) {
		jwt, err := google.JWTConfigFromJSON(b, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		return jwt.Client(ctx), nil
	}

	config, err := oauthConfig(b)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(p.TokenFile)
	if err != nil {
		if !p.Interactive {
			return nil, fmt.Errorf("no usable token at %s, run `sheetsync auth` first: %w", p.TokenFile, err)
		}
		log.Infof("No existing token found at %s. Initiating web authorization flow...", p.TokenFile)
		tok, err = getTokenFromWeb(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveToken(p.TokenFile, tok); err != nil {
			return nil, err
		}
	}

	// The token source refreshes expired access tokens; persist whatever it
	// hands back so the next run starts from the freshest token.
	src := oauth2.ReuseTokenSource(tok, config.TokenSource(ctx, tok))
	current, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("unable to refresh token: %w", err)
	}
	if current.AccessToken != tok.AccessToken || current.RefreshToken != tok.RefreshToken {
		log.Debug("Token was refreshed. Saving new token to file.")
		if err := saveToken(p.TokenFile, current); err != nil {
			log.Warnf("Could not save refreshed token: %v", err)
		}
	}
	return oauth2.NewClient(ctx, src), nil
}

// Reset removes the cached token so the next interactive Client call runs
// the browser flow again.
func (p *Provider) Reset() error {
	err := os.Remove(p.TokenFile)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete token file '%s': %w", p.TokenFile, err)
	}
	return nil
}

func isServiceAccount(b []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(b, &probe) == nil && probe.Type == "service_account"
}

// oauthConfig parses a client secret and pins localhost redirects to
// LocalhostAuthPort, where getTokenFromWeb listens.
func oauthConfig(b []byte) (*oauth2.Config, error) {
	config, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	parsedURL, parseErr := url.Parse(config.RedirectURL)
	switch {
	case config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob" || config.RedirectURL == "":
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	case parseErr != nil:
		log.Warnf("Could not parse RedirectURL '%s': %v. Using it as is.", config.RedirectURL, parseErr)
	case parsedURL.Hostname() == "localhost" || parsedURL.Hostname() == "127.0.0.1":
		if parsedURL.Port() != LocalhostAuthPort {
			parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
			config.RedirectURL = parsedURL.String()
		}
	default:
		log.Warnf("Configured RedirectURL is not a localhost callback: %s. Ensure this is correct for your setup.", config.RedirectURL)
	}
	return config, nil
}

// getTokenFromWeb runs the authorization code flow, capturing the redirect
// on a local web server.
func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
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
	defer server.Shutdown(context.Background())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()

	// AccessTypeOffline is what gets us a refresh token for unattended runs.
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Please open the following URL in your browser to authorize sheetsync:\n%s\n", authURL)
	log.Info("Waiting for authorization code...")

	select {
	case authCode := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchangeCtx, authCode)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(authTimeout):
		return nil, fmt.Errorf("authorization timed out. Please try again")
	}
}

// tokenFromFile reads an oauth2.Token from a JSON file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

// saveToken saves an oauth2.Token to a JSON file readable only by the owner.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
