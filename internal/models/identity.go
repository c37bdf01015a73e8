package models

// IdentityKind discriminates the principal variants the resolver understands.
type IdentityKind string

const (
	IdentityKindUser                          IdentityKind = "User"
	IdentityKindGroup                         IdentityKind = "Group"
	IdentityKindServicePrincipal              IdentityKind = "ServicePrincipal"
	IdentityKindUserAssignedManagedIdentity   IdentityKind = "UserAssignedManagedIdentity"
	IdentityKindSystemAssignedManagedIdentity IdentityKind = "SystemAssignedManagedIdentity"
)

// ServicePrincipalType further qualifies service principals.
type ServicePrincipalType string

const (
	ServicePrincipalTypeApplication     ServicePrincipalType = "Application"
	ServicePrincipalTypeManagedIdentity ServicePrincipalType = "ManagedIdentity"
)

// Identity is a single directory principal. Instances are immutable once
// fetched within a resolution run.
type Identity struct {
	ObjectID    string       `json:"object_id"`
	AppID       string       `json:"app_id,omitempty"`
	DisplayName string       `json:"display_name"`
	Email       string       `json:"email,omitempty"`
	Kind        IdentityKind `json:"kind"`

	// Set only for Kind == ServicePrincipal and the managed identity kinds.
	ServicePrincipalType ServicePrincipalType `json:"service_principal_type,omitempty"`

	// Object ID of the app registration backing an Application service
	// principal, when known.
	AppRegistrationObjectID string `json:"app_registration_object_id,omitempty"`
}

func (i *Identity) GetObjectID() string {
	return i.ObjectID
}

func (i *Identity) GetLabel() string {
	if len(i.DisplayName) > 0 {
		return i.DisplayName
	} else if len(i.Email) > 0 {
		return i.Email
	}
	return i.ObjectID
}

func (i *Identity) IsUser() bool {
	return i.Kind == IdentityKindUser
}

func (i *Identity) IsGroup() bool {
	return i.Kind == IdentityKindGroup
}

func (i *Identity) IsServicePrincipal() bool {
	return i.Kind == IdentityKindServicePrincipal ||
		i.Kind == IdentityKindUserAssignedManagedIdentity ||
		i.Kind == IdentityKindSystemAssignedManagedIdentity
}

// SupportsGroupMembership reports whether the directory exposes "member of"
// edges for this principal kind. Membership expansion only applies to these.
func (i *Identity) SupportsGroupMembership() bool {
	return i.IsUser() || i.IsGroup() || i.IsServicePrincipal()
}
