package google

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

var ErrNoToken = errors.New("no oauth token, run the authorize command first")

func loadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("could not load credentials from %s: %w", credentialsPath, err)
	}
	config, err := googleoauth.ConfigFromJSON(data, gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", credentialsPath, err)
	}
	return config, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token %s: %w", path, err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("failed to parse token %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save token %s: %w", path, err)
	}
	log.Infof("token saved to %s", path)
	return nil
}

// Authorize runs the one-time consent flow: it prints the consent URL to out,
// reads the authorization code from in and stores the resulting token.
func Authorize(ctx context.Context, credentialsPath, tokenPath string, in io.Reader, out io.Writer) error {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return err
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Authorize this app by visiting this URL:\n%s\n", authURL)
	fmt.Fprint(out, "After authorization, paste the code here and press Enter: ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("authorization code is empty")
	}

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return saveToken(tokenPath, tok)
}

// persistingTokenSource writes refreshed tokens back to disk.
type persistingTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	path   string
	access string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.access {
		s.access = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			log.Warnf("failed to persist refreshed token: %v", err)
		}
	}
	return tok, nil
}
