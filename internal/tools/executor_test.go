package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/sonara-ai/sonara/internal/auth"
	"github.com/sonara-ai/sonara/internal/vault"
)

func newTestExecutor() *Executor {
	store := vault.NewInMemoryStore()
	store.Put(vault.Document{ID: "d1", Title: "Handbook", Content: "company handbook text", Tier: 0})
	store.Put(vault.Document{ID: "d2", Title: "Board minutes", Content: "restricted minutes", Tier: 2})
	return NewExecutor(store)
}

func TestExecuteSearchDocuments(t *testing.T) {
	e := newTestExecutor()
	sub := &Subject{UserID: "u1", Role: auth.RoleUser}

	res := e.Execute(context.Background(), Call{ID: "tc1", Name: ToolSearchDocuments, Arguments: map[string]any{"query": "handbook"}}, sub)
	if !res.Success {
		t.Fatalf("Execute() failed: %s", res.Error)
	}
	if res.ID != "tc1" || res.Name != ToolSearchDocuments {
		t.Fatalf("result echo = %q/%q", res.ID, res.Name)
	}
	payload := res.Result.(map[string]any)
	docs := payload["documents"].([]map[string]any)
	if len(docs) != 1 || docs[0]["id"] != "d1" {
		t.Fatalf("documents = %v", docs)
	}
}

func TestExecuteDeniesToolOutsideAllowList(t *testing.T) {
	e := newTestExecutor()
	sub := &Subject{UserID: "u1", Role: auth.RoleUser}

	res := e.Execute(context.Background(), Call{Name: ToolTogglePrivilegeMode}, sub)
	if res.Success {
		t.Fatalf("user role must not toggle privilege mode")
	}
	if !strings.Contains(res.Error, auth.RoleAdmin) {
		t.Fatalf("error %q should mention the required role", res.Error)
	}
	if sub.Privileged {
		t.Fatalf("denied call must not mutate the subject")
	}
}

func TestExecuteUnknownToolFailsLocally(t *testing.T) {
	e := newTestExecutor()
	res := e.Execute(context.Background(), Call{Name: "summon_dragon"}, &Subject{Role: auth.RoleAdmin})
	if res.Success {
		t.Fatalf("unknown tool must fail")
	}
	if !strings.Contains(res.Error, "unknown tool") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestExecuteHandlerErrorBecomesFailedResult(t *testing.T) {
	e := newTestExecutor()
	res := e.Execute(context.Background(), Call{Name: ToolSearchDocuments, Arguments: map[string]any{}}, &Subject{Role: auth.RoleUser})
	if res.Success {
		t.Fatalf("missing query must fail")
	}
	if res.Error == "" {
		t.Fatalf("failed result must carry the handler error")
	}
}

func TestExecuteRespectsPrivilegeTier(t *testing.T) {
	e := newTestExecutor()
	ctx := context.Background()

	sub := &Subject{UserID: "u1", Role: auth.RoleAdmin}
	res := e.Execute(ctx, Call{Name: ToolReadDocument, Arguments: map[string]any{"id": "d2"}}, sub)
	if res.Success {
		t.Fatalf("restricted doc must be hidden without privilege mode")
	}

	sub.Privileged = true
	res = e.Execute(ctx, Call{Name: ToolReadDocument, Arguments: map[string]any{"id": "d2"}}, sub)
	if !res.Success {
		t.Fatalf("privileged read failed: %s", res.Error)
	}
	if res.UI == nil || res.UI.Action != "open_document" {
		t.Fatalf("UI action = %+v, want open_document", res.UI)
	}
}

func TestExecuteSetRoleMutatesSubject(t *testing.T) {
	e := newTestExecutor()
	sub := &Subject{UserID: "u1", Role: auth.RoleAdmin}

	res := e.Execute(context.Background(), Call{Name: ToolSetRole, Arguments: map[string]any{"role": "operator"}}, sub)
	if !res.Success {
		t.Fatalf("Execute() failed: %s", res.Error)
	}
	if sub.Role != auth.RoleOperator {
		t.Fatalf("role = %q, want operator", sub.Role)
	}
}

func TestExecuteSetRoleRejectsUnknownRole(t *testing.T) {
	e := newTestExecutor()
	sub := &Subject{UserID: "u1", Role: auth.RoleAdmin}
	res := e.Execute(context.Background(), Call{Name: ToolSetRole, Arguments: map[string]any{"role": "emperor"}}, sub)
	if res.Success {
		t.Fatalf("unknown role must fail")
	}
	if sub.Role != auth.RoleAdmin {
		t.Fatalf("failed call must not mutate the subject")
	}
}

func TestExecuteNavigateReturnsUIAction(t *testing.T) {
	e := newTestExecutor()
	res := e.Execute(context.Background(), Call{Name: ToolNavigate, Arguments: map[string]any{"path": "/reports"}}, &Subject{Role: auth.RoleUser})
	if !res.Success {
		t.Fatalf("Execute() failed: %s", res.Error)
	}
	if res.UI == nil || res.UI.Action != "navigate" || res.UI.Params["path"] != "/reports" {
		t.Fatalf("UI = %+v", res.UI)
	}
}

func TestPermissionTableShape(t *testing.T) {
	if !Allowed(auth.RoleAdmin, ToolSetRole) {
		t.Fatalf("admin wildcard must allow set_role")
	}
	if Allowed(auth.RoleUser, ToolExportAuditLog) {
		t.Fatalf("user must not export audit logs")
	}
	if !Allowed(auth.RoleOperator, ToolExportAuditLog) {
		t.Fatalf("operator must export audit logs")
	}
	if got := RequiredRole(ToolExportAuditLog); got != auth.RoleOperator {
		t.Fatalf("RequiredRole = %q, want operator", got)
	}
	if got := RequiredRole(ToolSetRole); got != auth.RoleAdmin {
		t.Fatalf("RequiredRole = %q, want admin", got)
	}
}
