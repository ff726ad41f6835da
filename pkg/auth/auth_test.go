package auth

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestBasicHeader(t *testing.T) {
	// base64("pm@example.com:token-123")
	want := "Basic cG1AZXhhbXBsZS5jb206dG9rZW4tMTIz"
	if got := BasicHeader("pm@example.com", "token-123"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestSetBasic(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	SetBasic(req, "", "")
	if req.Header.Get("Authorization") != "" {
		t.Error("Expected no Authorization header for empty credentials")
	}

	SetBasic(req, "admin", "pw")
	user, pass, ok := req.BasicAuth()
	if !ok || user != "admin" || pass != "pw" {
		t.Errorf("Expected admin/pw, got %s/%s (ok=%v)", user, pass, ok)
	}
}

func TestRedirectFor(t *testing.T) {
	cases := []struct {
		configured string
		want       string
	}{
		{"", "http://localhost:6789/oauth2callback"},
		{"urn:ietf:wg:oauth:2.0:oob", "http://localhost:6789/oauth2callback"},
		{"http://localhost/cb", "http://localhost:6789/cb"},
		{"http://127.0.0.1:1234/cb", "http://127.0.0.1:6789/cb"},
		{"https://nexus.example.com/cb", "https://nexus.example.com/cb"},
	}
	for _, c := range cases {
		if got := redirectFor(c.configured, "6789"); got != c.want {
			t.Errorf("redirectFor(%q): expected %s, got %s", c.configured, c.want, got)
		}
	}
}

func TestGoogleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	secrets := `{"installed":{"client_id":"cid","client_secret":"csecret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	if err := os.WriteFile(path, []byte(secrets), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := GoogleConfig(path, "6789")
	if err != nil {
		t.Fatalf("GoogleConfig failed: %v", err)
	}
	if cfg.ClientID != "cid" {
		t.Errorf("Expected client id cid, got %s", cfg.ClientID)
	}
	if cfg.RedirectURL != "http://localhost:6789" {
		t.Errorf("Expected pinned redirect, got %s", cfg.RedirectURL)
	}

	if _, err := GoogleConfig(filepath.Join(t.TempDir(), "missing.json"), "6789"); err == nil {
		t.Error("Expected error for missing secrets file")
	}
}
