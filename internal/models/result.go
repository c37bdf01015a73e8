package models

import "sort"

// IdentityRoleAssignmentResult is the output aggregate of one resolution run.
// It is produced fresh per resolution, never mutated after construction and
// carries no reference back to traversal state.
type IdentityRoleAssignmentResult struct {
	Identity Identity `json:"identity"`

	// Assignments bound directly to the principal.
	DirectRoleAssignments []RoleAssignment `json:"direct_role_assignments"`

	// Every security group reached during traversal, each carrying its own
	// role assignments (provenance is preserved here even though the
	// flattened view below is deduplicated).
	Groups []SecurityGroup `json:"groups"`

	// Direct plus all ancestor-group assignments, deduplicated by
	// assignment ID.
	RoleAssignments []RoleAssignment `json:"role_assignments"`

	ApiPermissions []ApiPermission `json:"api_permissions"`

	// Partial is set when some ancestor groups could not be expanded after
	// retries. The failed group IDs are enumerated so callers can surface
	// them rather than silently dropping coverage.
	Partial        bool     `json:"partial"`
	FailedGroupIDs []string `json:"failed_group_ids,omitempty"`
}

// AssignmentCount returns the size of the deduplicated assignment set.
func (r *IdentityRoleAssignmentResult) AssignmentCount() int {
	return len(r.RoleAssignments)
}

// GroupIDs returns the object IDs of all traversed groups, sorted.
func (r *IdentityRoleAssignmentResult) GroupIDs() []string {
	ids := make([]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		ids = append(ids, g.ObjectID)
	}
	sort.Strings(ids)
	return ids
}
