package tools

import (
	"fmt"

	"github.com/sonara-ai/sonara/internal/auth"
)

// Tool names exposed to the model.
const (
	ToolSearchDocuments     = "search_documents"
	ToolReadDocument        = "read_document"
	ToolListDocuments       = "list_documents"
	ToolVaultStats          = "vault_stats"
	ToolNavigate            = "navigate"
	ToolOpenDocument        = "open_document"
	ToolSetRole             = "set_role"
	ToolTogglePrivilegeMode = "toggle_privilege_mode"
	ToolExportAuditLog      = "export_audit_log"
)

// rolePermissions maps each role to its explicit allow-list. Admin carries
// the wildcard.
var rolePermissions = map[string][]string{
	auth.RoleUser: {
		ToolSearchDocuments,
		ToolReadDocument,
		ToolListDocuments,
		ToolNavigate,
		ToolOpenDocument,
	},
	auth.RoleOperator: {
		ToolSearchDocuments,
		ToolReadDocument,
		ToolListDocuments,
		ToolVaultStats,
		ToolNavigate,
		ToolOpenDocument,
		ToolExportAuditLog,
	},
	auth.RoleAdmin: {"*"},
}

// ConfirmationSpec describes a tool that should be confirmed by the client
// before the result is acted on. Confirmation is advisory UX: permission is
// the hard gate, and a permitted call executes regardless.
type ConfirmationSpec struct {
	Severity string
	Message  string
}

var confirmationRequired = map[string]ConfirmationSpec{
	ToolSetRole: {
		Severity: "high",
		Message:  "This will change the active role for this session.",
	},
	ToolTogglePrivilegeMode: {
		Severity: "high",
		Message:  "This will toggle access to restricted documents.",
	},
	ToolExportAuditLog: {
		Severity: "medium",
		Message:  "This will export the compliance audit log.",
	},
}

// Allowed reports whether role may invoke the named tool.
func Allowed(role, tool string) bool {
	for _, name := range rolePermissions[role] {
		if name == "*" || name == tool {
			return true
		}
	}
	return false
}

// RequiredRole names the least-privileged role allowed to invoke the tool.
func RequiredRole(tool string) string {
	for _, role := range []string{auth.RoleUser, auth.RoleOperator, auth.RoleAdmin} {
		if Allowed(role, tool) {
			return role
		}
	}
	return auth.RoleAdmin
}

// NeedsConfirmation reports whether the tool carries a confirmation prompt.
func NeedsConfirmation(tool string) (ConfirmationSpec, bool) {
	spec, ok := confirmationRequired[tool]
	return spec, ok
}

// PermissionError builds the denial message surfaced in a failed Result.
func PermissionError(role, tool string) string {
	return fmt.Sprintf("tool %q requires role %s or higher (caller role: %s)", tool, RequiredRole(tool), role)
}
