package resolver

import (
	"sort"

	"github.com/permscope/permscope/internal/models"
)

// aggregate merges direct role assignments, each ancestor group's role
// assignments and the principal's API permissions into one result. The
// flattened assignment list is deduplicated by assignment ID; per-group
// provenance stays intact inside each SecurityGroup entry. Output is
// deterministic for a fixed directory snapshot regardless of traversal
// order.
func aggregate(identity models.Identity, direct []models.RoleAssignment, traversal *TraversalResult, permissions []models.ApiPermission) *models.IdentityRoleAssignmentResult {
	result := &models.IdentityRoleAssignmentResult{
		Identity:              identity,
		DirectRoleAssignments: direct,
		Groups:                traversal.Groups,
		ApiPermissions:        permissions,
		Partial:               traversal.Partial(),
		FailedGroupIDs:        traversal.FailedGroupIDs,
	}

	seen := make(map[string]bool, len(direct))
	flattened := make([]models.RoleAssignment, 0, len(direct))

	add := func(assignment models.RoleAssignment) {
		// The same assignment can be reachable through several ancestor
		// paths; it counts once.
		if seen[assignment.ID] {
			return
		}
		seen[assignment.ID] = true
		flattened = append(flattened, assignment)
	}

	for _, assignment := range direct {
		add(assignment)
	}
	for _, group := range traversal.Groups {
		for _, assignment := range group.RoleAssignments {
			add(assignment)
		}
	}

	sort.Slice(flattened, func(i, j int) bool {
		return flattened[i].ID < flattened[j].ID
	})
	result.RoleAssignments = flattened

	return result
}
