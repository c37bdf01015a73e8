package models

// RoleAssignment binds a role to a principal at a resource scope. These are
// read-only facts pulled from the directory; the resolver only aggregates
// them, it never constructs or mutates assignments.
type RoleAssignment struct {
	ID          string `json:"id"`
	RoleName    string `json:"role_name"`
	Scope       string `json:"scope"`
	PrincipalID string `json:"principal_id"`
}

func (r *RoleAssignment) GetID() string {
	return r.ID
}
