package models

// SecurityGroup is one security group reached during membership traversal.
// ParentGroupIDs are weak references used only for traversal; the membership
// graph may contain cycles and consumers must not follow them unguarded.
type SecurityGroup struct {
	ObjectID        string           `json:"object_id"`
	DisplayName     string           `json:"display_name"`
	Description     string           `json:"description,omitempty"`
	RoleAssignments []RoleAssignment `json:"role_assignments"`
	ParentGroupIDs  []string         `json:"parent_group_ids,omitempty"`
}

func (g *SecurityGroup) GetObjectID() string {
	return g.ObjectID
}

func (g *SecurityGroup) GetDisplayName() string {
	return g.DisplayName
}
