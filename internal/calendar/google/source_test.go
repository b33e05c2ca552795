package google

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const firstPage = `{
  "items": [
    {"id": "standup", "summary": "Standup", "location": "Room 1",
     "start": {"dateTime": "2024-05-10T09:00:00Z"}, "end": {"dateTime": "2024-05-10T09:15:00Z"}},
    {"id": "gone", "summary": "Cancelled", "status": "cancelled",
     "start": {"dateTime": "2024-05-10T10:00:00Z"}, "end": {"dateTime": "2024-05-10T11:00:00Z"}}
  ],
  "nextPageToken": "page-2"
}`

const secondPage = `{
  "items": [
    {"id": "holiday", "summary": "Holiday", "start": {"date": "2024-05-11"}, "end": {"date": "2024-05-12"}}
  ]
}`

func TestListUpcomingEvents(t *testing.T) {
	now := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	var queries []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/calendars/team@example.com/events"), r.URL.Path)
		queries = append(queries, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "page-2" {
			fmt.Fprint(w, secondPage)
			return
		}
		fmt.Fprint(w, firstPage)
	}))
	defer srv.Close()

	service, err := gcal.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	s := NewWithService(service, Config{CalendarID: "team@example.com", HorizonHours: 24})
	s.now = func() time.Time { return now }

	events, err := s.ListUpcomingEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, "standup", events[0].ID)
	require.Equal(t, "Standup", events[0].Summary)
	require.Equal(t, "Room 1", events[0].Location)
	require.Equal(t, "2024-05-10T09:00:00Z", events[0].Start.DateTime)

	require.Equal(t, "holiday", events[1].ID)
	require.Equal(t, "2024-05-11", events[1].Start.Date)
	require.Equal(t, "2024-05-12", events[1].End.Date)

	require.Len(t, queries, 2)
	require.Contains(t, queries[0], "singleEvents=true")
	require.Contains(t, queries[0], "timeMin=2024-05-10T08%3A00%3A00Z")
	require.Contains(t, queries[0], "timeMax=2024-05-11T08%3A00%3A00Z")
}

func TestListUpcomingEventsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 401, "message": "invalid credentials"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	service, err := gcal.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	_, err = NewWithService(service, Config{}).ListUpcomingEvents(context.Background())
	require.Error(t, err)
}

func TestNewWithServiceDefaults(t *testing.T) {
	s := NewWithService(nil, Config{})
	require.Equal(t, "primary", s.calendarID)
	require.Equal(t, 48*time.Hour, s.horizon)
}

func TestNewWithoutToken(t *testing.T) {
	dir := t.TempDir()
	credentials := writeCredentials(t, dir, "http://127.0.0.1/token")

	_, err := New(context.Background(), Config{CredentialsPath: credentials, TokenPath: filepath.Join(dir, "token.json")})
	require.ErrorIs(t, err, ErrNoToken)
}

func TestAuthorize(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "access", "token_type": "Bearer", "refresh_token": "refresh", "expires_in": 3600}`)
	}))
	defer tokenSrv.Close()

	dir := t.TempDir()
	credentials := writeCredentials(t, dir, tokenSrv.URL)
	tokenPath := filepath.Join(dir, "secrets", "token.json")

	var out strings.Builder
	err := Authorize(context.Background(), credentials, tokenPath, strings.NewReader("the-code\n"), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "client-id")
	require.Contains(t, out.String(), "access_type=offline")

	tok, err := loadToken(tokenPath)
	require.NoError(t, err)
	require.Equal(t, "access", tok.AccessToken)
	require.Equal(t, "refresh", tok.RefreshToken)

	info, err := os.Stat(tokenPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAuthorizeEmptyCode(t *testing.T) {
	dir := t.TempDir()
	credentials := writeCredentials(t, dir, "http://127.0.0.1/token")

	var out strings.Builder
	err := Authorize(context.Background(), credentials, filepath.Join(dir, "token.json"), strings.NewReader("\n"), &out)
	require.Error(t, err)
}

func writeCredentials(t *testing.T, dir, tokenURL string) string {
	t.Helper()
	path := filepath.Join(dir, "credentials.json")
	content := fmt.Sprintf(`{"installed": {
		"client_id": "client-id",
		"client_secret": "client-secret",
		"redirect_uris": ["urn:ietf:wg:oauth:2.0:oob"],
		"auth_uri": "https://accounts.google.com/o/oauth2/auth",
		"token_uri": %q
	}}`, tokenURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
