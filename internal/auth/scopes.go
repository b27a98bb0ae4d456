package auth

// Known OAuth scopes used by the coaching backend.
const (
	ScopeSessionsWrite  = "sessions:write"
	ScopeProgressRead   = "progress:read"
	ScopeRemindersRead  = "reminders:read"
	ScopeRemindersWrite = "reminders:write"
	ScopeCatalogRead    = "catalog:read"
)
