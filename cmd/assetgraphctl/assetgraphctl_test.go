package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// --- truncate tests ---

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a long string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			got := truncate(tt.s, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
			}
		})
	}
}

// --- client tests ---

func TestClientSendsIdentity(t *testing.T) {
	var gotUser, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-Remote-User")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	serverURL = srv.URL
	userName = "alice"
	authToken = "tok-123"
	defer func() { serverURL = "http://localhost:8080"; userName = ""; authToken = "" }()

	var out map[string]any
	if err := newClient().getJSON("/healthz", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "alice" {
		t.Errorf("X-Remote-User = %q, want alice", gotUser)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
}

func TestClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"workflow already completed"}`))
	}))
	defer srv.Close()

	serverURL = srv.URL
	defer func() { serverURL = "http://localhost:8080" }()

	err := newClient().putJSON("/api/v1alpha1/approval-workflows", map[string]any{"id": "x"}, nil)
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "workflow already completed") {
		t.Errorf("error should carry status and body, got: %v", err)
	}
}

// --- command tree tests ---

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"workflows": {"list", "create", "advance <id>", "approve <id>", "reject <id>"},
		"assets":    {"get <id>", "revisions <id>", "snapshot <id>", "edges <id>", "history <id>"},
	}

	for parent, subs := range want {
		var found *bool
		for _, cmd := range rootCmd.Commands() {
			if cmd.Use != parent {
				continue
			}
			ok := true
			found = &ok
			names := make(map[string]bool)
			for _, sub := range cmd.Commands() {
				names[sub.Use] = true
			}
			for _, sub := range subs {
				if !names[sub] {
					t.Errorf("%s: missing subcommand %q", parent, sub)
				}
			}
		}
		if found == nil {
			t.Errorf("missing top-level command %q", parent)
		}
	}
}

func TestWorkflowsListRequiresProject(t *testing.T) {
	workflowsProjectID = ""
	err := workflowsListCmd.RunE(workflowsListCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--project") {
		t.Fatalf("expected missing --project error, got %v", err)
	}
}

func TestWorkflowsListHitsServer(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		_ = json.NewEncoder(w).Encode(map[string]any{"workflows": []any{}})
	}))
	defer srv.Close()

	serverURL = srv.URL
	workflowsProjectID = "proj-1"
	workflowsStatus = "pending"
	outputFmt = "json"
	defer func() {
		serverURL = "http://localhost:8080"
		workflowsProjectID = ""
		workflowsStatus = ""
		outputFmt = "table"
	}()

	if err := workflowsListCmd.RunE(workflowsListCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/v1alpha1/approval-workflows?projectId=proj-1&status=pending" {
		t.Errorf("unexpected request path: %s", gotPath)
	}
}
