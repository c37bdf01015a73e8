package models

// ApiPermissionKind distinguishes delegated from application permissions.
type ApiPermissionKind string

const (
	ApiPermissionKindDelegated   ApiPermissionKind = "Delegated"
	ApiPermissionKindApplication ApiPermissionKind = "Application"
)

// ApiPermission is a single API permission granted to a principal, e.g. a
// Microsoft Graph app role or a delegated OAuth2 scope.
type ApiPermission struct {
	ID           string            `json:"id"`
	ResourceName string            `json:"resource_name,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Kind         ApiPermissionKind `json:"kind"`
	Value        string            `json:"value"`
}
