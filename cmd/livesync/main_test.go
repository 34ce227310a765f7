package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/livesync/internal/config"
	"github.com/rickgao/livesync/internal/engine"
	"github.com/rickgao/livesync/internal/schema"
	"github.com/rickgao/livesync/internal/version"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version.String() {
		t.Errorf("output = %q, want %q", got, version.String())
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--json"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var info version.Info
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != version.Version {
		t.Errorf("Version = %q, want %q", info.Version, version.Version)
	}
}

func TestSchemasCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"schemas"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("schemas failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(schema.Kinds())+1 {
		t.Errorf("got %d lines, want header plus %d schemas", len(lines), len(schema.Kinds()))
	}
	if !strings.Contains(out.String(), "persona -> persona") {
		t.Errorf("expected personaIdentifier relation in output:\n%s", out.String())
	}
}

func TestRunCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--config", "/nonexistent/livesync.yaml"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestNewCredentialStore(t *testing.T) {
	store, err := newCredentialStore(config.CredentialsConfig{
		Cookies:      map[string]string{"token-a": "1", "token-b": "old"},
		CookieHeader: "token-b=2; theme=dark",
	})
	if err != nil {
		t.Fatalf("newCredentialStore failed: %v", err)
	}

	got := store.Cookies()
	want := map[string]string{"token-a": "1", "token-b": "2", "theme": "dark"}
	if len(got) != len(want) {
		t.Fatalf("cookies = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("cookie %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestStatusRouter(t *testing.T) {
	e := engine.New(engine.FromConfig(config.Default()), engine.Deps{})
	e.Cache().MergeEntities(schema.Graph{
		"statement": {"abc": {"_id": "abc", "verb": "completed"}},
	})
	router := newStatusRouter(e, prometheus.NewRegistry(), "/metrics", "test-1", newLogger(&bytes.Buffer{}, config.LogConfig{}))

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"health before ready", "/health", http.StatusServiceUnavailable, `"status":"degraded"`},
		{"entities", "/debug/entities", http.StatusOK, `"verb":"completed"`},
		{"entities by type", "/debug/entities?type=persona", http.StatusOK, `{}`},
		{"entity", "/debug/entities/statement/abc", http.StatusOK, `"_id":"abc"`},
		{"missing entity", "/debug/entities/statement/nope", http.StatusNotFound, `entity not found`},
		{"pages", "/debug/pages", http.StatusOK, `{}`},
		{"metrics", "/metrics", http.StatusOK, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
