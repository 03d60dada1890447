package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sonara-ai/sonara/internal/auth"
	"github.com/sonara-ai/sonara/internal/vault"
)

// Executor dispatches named tool calls against a caller subject, gated by
// the role permission table. All handler failures come back as failed
// Results; Execute itself never returns an error.
type Executor struct {
	vault    vault.Store
	handlers map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, call Call, sub *Subject, e *Executor) (any, *UIAction, error)

func NewExecutor(store vault.Store) *Executor {
	e := &Executor{vault: store}
	e.handlers = map[string]handlerFunc{
		ToolSearchDocuments:     handleSearchDocuments,
		ToolReadDocument:        handleReadDocument,
		ToolListDocuments:       handleListDocuments,
		ToolVaultStats:          handleVaultStats,
		ToolNavigate:            handleNavigate,
		ToolOpenDocument:        handleOpenDocument,
		ToolSetRole:             handleSetRole,
		ToolTogglePrivilegeMode: handleTogglePrivilegeMode,
		ToolExportAuditLog:      handleExportAuditLog,
	}
	return e
}

// Known reports whether the named tool exists in the registry.
func (e *Executor) Known(name string) bool {
	_, ok := e.handlers[name]
	return ok
}

// Execute runs one permitted tool call. The permission gate is checked here;
// callers surface confirmation prompts separately (confirmation is advisory
// and does not block execution).
func (e *Executor) Execute(ctx context.Context, call Call, sub *Subject) Result {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	handler, ok := e.handlers[call.Name]
	if !ok {
		return failed(call, fmt.Sprintf("unknown tool %q", call.Name))
	}
	if !Allowed(sub.Role, call.Name) {
		return failed(call, PermissionError(sub.Role, call.Name))
	}

	payload, ui, err := handler(ctx, call, sub, e)
	if err != nil {
		return failed(call, err.Error())
	}
	return Result{ID: call.ID, Name: call.Name, Success: true, Result: payload, UI: ui}
}

// maxTier maps the session privilege flag to document visibility.
func maxTier(sub *Subject) int {
	if sub.Privileged {
		return 1 << 30
	}
	return 0
}

func stringArg(call Call, key string) string {
	v, _ := call.Arguments[key].(string)
	return strings.TrimSpace(v)
}

func intArg(call Call, key string, fallback int) int {
	switch v := call.Arguments[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func handleSearchDocuments(ctx context.Context, call Call, sub *Subject, e *Executor) (any, *UIAction, error) {
	query := stringArg(call, "query")
	if query == "" {
		return nil, nil, errors.New("search_documents requires a query argument")
	}
	docs, err := e.vault.Search(ctx, query, maxTier(sub), intArg(call, "limit", 5))
	if err != nil {
		return nil, nil, fmt.Errorf("vault search: %w", err)
	}
	results := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		results = append(results, map[string]any{
			"id":      doc.ID,
			"title":   doc.Title,
			"snippet": snippet(doc.Content, 160),
		})
	}
	return map[string]any{"query": query, "documents": results}, nil, nil
}

func handleReadDocument(ctx context.Context, call Call, sub *Subject, e *Executor) (any, *UIAction, error) {
	id := stringArg(call, "id")
	if id == "" {
		return nil, nil, errors.New("read_document requires an id argument")
	}
	doc, err := e.vault.Get(ctx, id, maxTier(sub))
	if err != nil {
		return nil, nil, fmt.Errorf("vault read: %w", err)
	}
	ui := &UIAction{Action: "open_document", Params: map[string]any{"document_id": doc.ID}}
	return doc, ui, nil
}

func handleListDocuments(ctx context.Context, call Call, sub *Subject, e *Executor) (any, *UIAction, error) {
	docs, err := e.vault.List(ctx, maxTier(sub), intArg(call, "limit", 20))
	if err != nil {
		return nil, nil, fmt.Errorf("vault list: %w", err)
	}
	titles := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		titles = append(titles, map[string]any{"id": doc.ID, "title": doc.Title})
	}
	return map[string]any{"documents": titles}, nil, nil
}

func handleVaultStats(ctx context.Context, _ Call, _ *Subject, e *Executor) (any, *UIAction, error) {
	stats, err := e.vault.Stats(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("vault stats: %w", err)
	}
	return stats, nil, nil
}

func handleNavigate(_ context.Context, call Call, _ *Subject, _ *Executor) (any, *UIAction, error) {
	path := stringArg(call, "path")
	if path == "" {
		return nil, nil, errors.New("navigate requires a path argument")
	}
	ui := &UIAction{Action: "navigate", Params: map[string]any{"path": path}}
	return map[string]any{"path": path}, ui, nil
}

func handleOpenDocument(ctx context.Context, call Call, sub *Subject, e *Executor) (any, *UIAction, error) {
	id := stringArg(call, "id")
	if id == "" {
		return nil, nil, errors.New("open_document requires an id argument")
	}
	doc, err := e.vault.Get(ctx, id, maxTier(sub))
	if err != nil {
		return nil, nil, fmt.Errorf("vault read: %w", err)
	}
	ui := &UIAction{Action: "open_document", Params: map[string]any{"document_id": doc.ID}}
	return map[string]any{"id": doc.ID, "title": doc.Title}, ui, nil
}

func handleSetRole(_ context.Context, call Call, sub *Subject, _ *Executor) (any, *UIAction, error) {
	role := strings.ToLower(stringArg(call, "role"))
	switch role {
	case auth.RoleUser, auth.RoleOperator, auth.RoleAdmin:
	default:
		return nil, nil, fmt.Errorf("unknown role %q", role)
	}
	sub.Role = role
	ui := &UIAction{Action: "show_notification", Params: map[string]any{"message": "Role changed to " + role}}
	return map[string]any{"role": role}, ui, nil
}

func handleTogglePrivilegeMode(_ context.Context, _ Call, sub *Subject, _ *Executor) (any, *UIAction, error) {
	sub.Privileged = !sub.Privileged
	ui := &UIAction{Action: "toggle_privilege_mode", Params: map[string]any{"enabled": sub.Privileged}}
	return map[string]any{"privileged": sub.Privileged}, ui, nil
}

func handleExportAuditLog(ctx context.Context, _ Call, sub *Subject, e *Executor) (any, *UIAction, error) {
	stats, err := e.vault.Stats(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("vault stats: %w", err)
	}
	exportID := uuid.NewString()
	ui := &UIAction{Action: "show_notification", Params: map[string]any{"message": "Audit export " + exportID + " started"}}
	return map[string]any{
		"export_id":    exportID,
		"requested_by": sub.UserID,
		"documents":    stats.Documents,
		"restricted":   stats.Restricted,
	}, ui, nil
}

func snippet(content string, max int) string {
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	return strings.TrimSpace(content[:max]) + "..."
}
