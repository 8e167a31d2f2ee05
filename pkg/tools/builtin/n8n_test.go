package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowwright/flowwright/pkg/graph"
	"github.com/flowwright/flowwright/pkg/n8n"
	"github.com/flowwright/flowwright/pkg/tools"
)

// newRemoteSession builds a session whose client points at a fake n8n
// instance. The returned counter tracks how many requests reached it.
func newRemoteSession(t *testing.T, handler http.HandlerFunc) (*Session, *atomic.Int64) {
	t.Helper()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := n8n.NewClient(n8n.ClientConfig{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		Timeout:   5 * time.Second,
		RateLimit: 100,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	session, err := NewSession(SessionConfig{Builder: graph.NewBuilder(), Client: client})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return session, &hits
}

func TestValidateWorkflowToolNotConfigured(t *testing.T) {
	session := newTestSession(t)

	result, err := NewValidateWorkflowTool(session).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("an unconfigured client is a tool failure, not an error: %v", err)
	}
	if tools.IsSuccess(result) {
		t.Fatal("expected not-configured failure")
	}
	if msg := tools.ErrorMessage(result); !strings.Contains(msg, "n8n API not configured") {
		t.Errorf("error = %q, want not-configured message", msg)
	}
}

func TestCreateWorkflowToolNotConfigured(t *testing.T) {
	session := newTestSession(t)

	result, err := NewCreateWorkflowTool(session).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("an unconfigured client is a tool failure, not an error: %v", err)
	}
	if tools.IsSuccess(result) {
		t.Fatal("expected not-configured failure")
	}
	if msg := tools.ErrorMessage(result); !strings.Contains(msg, "n8n API not configured") {
		t.Errorf("error = %q, want not-configured message", msg)
	}
}

func TestValidateWorkflowToolLocalErrorsSkipRemote(t *testing.T) {
	session, hits := newRemoteSession(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to n8n: %s %s", r.Method, r.URL.Path)
	})

	// Empty graph: the local validator reports no_nodes
	result, err := NewValidateWorkflowTool(session).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !tools.IsSuccess(result) {
		t.Fatalf("local findings are a successful result: %s", tools.ErrorMessage(result))
	}
	if result["valid"] != false {
		t.Error("empty workflow should be invalid")
	}
	if result["remote_checked"] != false {
		t.Error("remote must not be consulted while local errors remain")
	}
	issues, ok := result["errors"].([]n8n.Issue)
	if !ok || len(issues) == 0 {
		t.Fatalf("errors = %v, want local findings", result["errors"])
	}
	if hits.Load() != 0 {
		t.Errorf("n8n received %d requests, want 0", hits.Load())
	}
}

func TestValidateWorkflowToolRemoteRoundTrip(t *testing.T) {
	var deleted atomic.Bool
	session, _ := newRemoteSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"id": "wf-9"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/workflows/wf-9":
			deleted.Store(true)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})
	addNode(t, session, "n8n-nodes-base.webhook", "Webhook")

	result, err := NewValidateWorkflowTool(session).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !tools.IsSuccess(result) {
		t.Fatalf("Execute failed: %s", tools.ErrorMessage(result))
	}
	if result["valid"] != true {
		t.Errorf("valid = %v, want true", result["valid"])
	}
	if result["remote_checked"] != true {
		t.Error("remote_checked should be true after a round-trip")
	}
	if !deleted.Load() {
		t.Error("validation probe workflow was not deleted")
	}
}

func TestValidateWorkflowToolRemoteRejection(t *testing.T) {
	session, _ := newRemoteSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "request/body/nodes/0 must have required property 'position'"}`))
	})
	addNode(t, session, "n8n-nodes-base.webhook", "Webhook")

	result, err := NewValidateWorkflowTool(session).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !tools.IsSuccess(result) {
		t.Fatalf("a remote rejection is a successful result: %s", tools.ErrorMessage(result))
	}
	if result["valid"] != false {
		t.Error("remote rejection should make the result invalid")
	}
	if result["remote_checked"] != true {
		t.Error("remote_checked should be true, the instance answered")
	}

	issues := result["errors"].([]n8n.Issue)
	if len(issues) != 1 || issues[0].Code != "remote_rejected" {
		t.Fatalf("errors = %v, want a single remote_rejected finding", issues)
	}
	if !strings.Contains(issues[0].Message, "position") {
		t.Errorf("finding lost the instance's reason: %q", issues[0].Message)
	}
}

func TestValidateWorkflowToolRemoteFailure(t *testing.T) {
	session, _ := newRemoteSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "unauthorized"}`))
	})
	addNode(t, session, "n8n-nodes-base.webhook", "Webhook")

	result, err := NewValidateWorkflowTool(session).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("a remote failure is a tool failure, not an error: %v", err)
	}
	if tools.IsSuccess(result) {
		t.Fatal("auth failure should fail the tool")
	}
	if msg := tools.ErrorMessage(result); !strings.Contains(msg, "remote validation failed") {
		t.Errorf("error = %q, want remote-failure message", msg)
	}
}

func TestCreateWorkflowTool(t *testing.T) {
	session, _ := newRemoteSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/workflows" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id": "wf-42", "name": "Generated Workflow", "active": false}`))
	})
	addNode(t, session, "n8n-nodes-base.webhook", "Webhook")

	result, err := NewCreateWorkflowTool(session).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !tools.IsSuccess(result) {
		t.Fatalf("Execute failed: %s", tools.ErrorMessage(result))
	}
	if result["workflow_id"] != "wf-42" {
		t.Errorf("workflow_id = %v, want wf-42", result["workflow_id"])
	}
	url, _ := result["url"].(string)
	if !strings.HasSuffix(url, "/workflow/wf-42") {
		t.Errorf("url = %q, want editor URL for wf-42", url)
	}
	if result["active"] != false {
		t.Errorf("active = %v, want false without activate", result["active"])
	}
}

func TestCreateWorkflowToolActivate(t *testing.T) {
	var activated atomic.Bool
	session, _ := newRemoteSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/workflows":
			w.Write([]byte(`{"id": "wf-42"}`))
		case "/api/v1/workflows/wf-42/activate":
			activated.Store(true)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})
	addNode(t, session, "n8n-nodes-base.webhook", "Webhook")

	result, err := NewCreateWorkflowTool(session).Execute(context.Background(), map[string]interface{}{
		"activate": true,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !tools.IsSuccess(result) {
		t.Fatalf("Execute failed: %s", tools.ErrorMessage(result))
	}
	if result["active"] != true {
		t.Errorf("active = %v, want true", result["active"])
	}
	if !activated.Load() {
		t.Error("activate endpoint was not called")
	}
}

func TestCreateWorkflowToolActivationFailure(t *testing.T) {
	session, _ := newRemoteSession(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/activate") {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message": "no trigger"}`))
			return
		}
		w.Write([]byte(`{"id": "wf-42"}`))
	})
	addNode(t, session, "n8n-nodes-base.webhook", "Webhook")

	result, err := NewCreateWorkflowTool(session).Execute(context.Background(), map[string]interface{}{
		"activate": true,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	// The workflow exists; reporting failure would push the model into
	// creating a duplicate
	if !tools.IsSuccess(result) {
		t.Fatalf("creation succeeded, result must too: %s", tools.ErrorMessage(result))
	}
	if result["active"] != false {
		t.Errorf("active = %v, want false", result["active"])
	}
	warning, _ := result["warning"].(string)
	if !strings.Contains(warning, "activation failed") {
		t.Errorf("warning = %q, want activation failure noted", warning)
	}
}

func TestCreateWorkflowToolCreateFailure(t *testing.T) {
	session, _ := newRemoteSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "must have required property 'nodes'"}`))
	})

	result, err := NewCreateWorkflowTool(session).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("an API rejection is a tool failure, not an error: %v", err)
	}
	if tools.IsSuccess(result) {
		t.Fatal("rejected create should fail")
	}
	if msg := tools.ErrorMessage(result); !strings.Contains(msg, "failed to create workflow") {
		t.Errorf("error = %q, want create-failure message", msg)
	}
}
