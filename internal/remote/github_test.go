package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-github/v66/github"

	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/content"
)

const testContentPath = "public/universe/universe.json"

func testGitHubConfig() GitHubConfig {
	return GitHubConfig{
		Token:  "test-token",
		Owner:  "me",
		Repo:   "site",
		Branch: "main",
		Path:   testContentPath,
	}
}

// fakeGitHub is a minimal contents-API stub: one file with one blob SHA.
type fakeGitHub struct {
	mux      *http.ServeMux
	fileSHA  string
	raw      []byte
	puts     []map[string]any
	failAuth bool
}

func newFakeGitHub(t *testing.T, fileSHA string, raw []byte) (*fakeGitHub, *github.Client) {
	t.Helper()
	f := &fakeGitHub{mux: http.NewServeMux(), fileSHA: fileSHA, raw: raw}

	contentsRoute := fmt.Sprintf("/repos/me/site/contents/%s", testContentPath)
	f.mux.HandleFunc(contentsRoute, func(w http.ResponseWriter, r *http.Request) {
		if f.failAuth {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		switch r.Method {
		case http.MethodGet:
			if f.fileSHA == "" {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message":"Not Found"}`)
				return
			}
			payload := map[string]any{
				"type":     "file",
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString(f.raw),
				"sha":      f.fileSHA,
			}
			_ = json.NewEncoder(w).Encode(payload)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			var put map[string]any
			_ = json.Unmarshal(body, &put)
			f.puts = append(f.puts, put)
			f.fileSHA = "blob-after-push"
			_ = json.NewEncoder(w).Encode(map[string]any{
				"content": map[string]any{"sha": f.fileSHA},
				"commit":  map[string]any{"sha": "commit-after-push"},
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	server := httptest.NewServer(f.mux)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	client.BaseURL = base
	return f, client
}

func TestGitHubFetchCurrent(t *testing.T) {
	raw := []byte(`{"galaxies":[]}` + "\n")
	_, client := newFakeGitHub(t, "blob-1", raw)
	gh := NewGitHubWithClient(testGitHubConfig(), client)

	snap, err := gh.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if string(snap.Content) != string(raw) {
		t.Fatalf("content = %q, want %q", snap.Content, raw)
	}
	if snap.Version != "blob-1" {
		t.Fatalf("version = %s, want blob-1", snap.Version)
	}
}

func TestGitHubFetchUnavailableOnNetworkFailure(t *testing.T) {
	cfg := testGitHubConfig()
	client := github.NewClient(nil)
	base, _ := url.Parse("http://127.0.0.1:1/")
	client.BaseURL = base
	gh := NewGitHubWithClient(cfg, client)

	_, err := gh.FetchCurrent(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("FetchCurrent() error = %v, want ErrUnavailable", err)
	}
}

func TestGitHubMissingConfig(t *testing.T) {
	gh := NewGitHub(GitHubConfig{})

	_, err := gh.FetchCurrent(context.Background())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("FetchCurrent() error = %v, want *ConfigError", err)
	}
	if !strings.Contains(cfgErr.Error(), "token") {
		t.Fatalf("expected the missing fields to be named, got %q", cfgErr.Error())
	}

	_, err = gh.Push(context.Background(), []byte("{}"), PushOptions{Message: "x"})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Push() error = %v, want *ConfigError", err)
	}
}

func TestGitHubPushUsesFreshSHA(t *testing.T) {
	raw := []byte("old\n")
	fake, client := newFakeGitHub(t, "blob-1", raw)
	gh := NewGitHubWithClient(testGitHubConfig(), client)

	next := []byte("new\n")
	result, err := gh.Push(context.Background(), next, PushOptions{
		Message:         "Update content",
		ExpectedVersion: "blob-1",
	})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if result.Version != "blob-after-push" {
		t.Fatalf("version = %s", result.Version)
	}
	if result.ContentHash != content.Hash(next) {
		t.Fatal("content hash must fingerprint the pushed bytes")
	}
	if len(fake.puts) != 1 {
		t.Fatalf("expected one write, got %d", len(fake.puts))
	}
	// The write must carry the SHA fetched inside Push, proving the
	// comparison token was re-fetched rather than reused.
	if fake.puts[0]["sha"] != "blob-1" {
		t.Fatalf("write used sha %v, want blob-1", fake.puts[0]["sha"])
	}
}

func TestGitHubPushConflict(t *testing.T) {
	fake, client := newFakeGitHub(t, "blob-2", []byte("current\n"))
	gh := NewGitHubWithClient(testGitHubConfig(), client)

	_, err := gh.Push(context.Background(), []byte("next\n"), PushOptions{
		Message:         "Update content",
		ExpectedVersion: "blob-1",
	})
	var conflict *content.BaselineConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Push() error = %v, want baseline conflict", err)
	}
	if len(fake.puts) != 0 {
		t.Fatal("a conflicting push must not write anything")
	}
}

func TestGitHubPushCreatesFileWhenAbsent(t *testing.T) {
	fake, client := newFakeGitHub(t, "", nil)
	gh := NewGitHubWithClient(testGitHubConfig(), client)

	_, err := gh.Push(context.Background(), []byte("first\n"), PushOptions{Message: "Initial"})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("expected one write, got %d", len(fake.puts))
	}
	if _, hasSHA := fake.puts[0]["sha"]; hasSHA {
		t.Fatal("creating a new file must not send a blob SHA")
	}
}

func TestGitHubPushAuthError(t *testing.T) {
	fake, client := newFakeGitHub(t, "blob-1", []byte("x\n"))
	fake.failAuth = true
	gh := NewGitHubWithClient(testGitHubConfig(), client)

	_, err := gh.Push(context.Background(), []byte("next\n"), PushOptions{Message: "Update"})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Push() error = %v, want *AuthError", err)
	}
}
