// Package directory adapts the remote Entra ID directory and Azure
// Resource Manager APIs behind a narrow client interface. Every call is
// tagged with a models.DirectoryError kind so the retry layer can decide
// whether to re-attempt it.
package directory

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/permscope/permscope/internal/models"
)

// Client is the directory contract consumed by the resolver. Implementations
// must be safe for concurrent use up to the configured concurrency ceiling.
type Client interface {
	// GetIdentity fetches one principal by object ID. Returns a not-found
	// tagged error when the principal does not exist.
	GetIdentity(ctx context.Context, objectID string) (*models.Identity, error)

	// SearchPrincipals returns all principals matching the query across
	// users, groups and service principals.
	SearchPrincipals(ctx context.Context, query string) ([]models.Identity, error)

	// GetDirectGroupMemberships returns the object IDs of the security
	// groups the principal is directly a member of.
	GetDirectGroupMemberships(ctx context.Context, principal *models.Identity) ([]string, error)

	// GetGroupParents returns the object IDs of the groups the given group
	// is itself nested under.
	GetGroupParents(ctx context.Context, groupID string) ([]string, error)

	// GetGroup fetches a single group record without role assignments.
	GetGroup(ctx context.Context, groupID string) (*models.SecurityGroup, error)

	// GetRoleAssignments returns the role assignments bound directly to the
	// principal, across all visible scopes.
	GetRoleAssignments(ctx context.Context, principalID string) ([]models.RoleAssignment, error)

	// GetApiPermissions returns the API permissions granted to the
	// principal. Only service principal kinds carry API permissions.
	GetApiPermissions(ctx context.Context, principal *models.Identity) ([]models.ApiPermission, error)
}

// AzureDirectory implements Client on top of Microsoft Graph for directory
// records and Azure Resource Manager for role assignments.
type AzureDirectory struct {
	graph *GraphClient
	arm   *ARMClient
}

// NewAzureDirectory wires the Graph and ARM clients against one credential.
// subscriptionID may be empty, in which case role assignments are scanned
// across every subscription visible to the credential.
func NewAzureDirectory(cred azcore.TokenCredential, subscriptionID string) (*AzureDirectory, error) {
	graph, err := NewGraphClient(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph client: %w", err)
	}

	arm, err := NewARMClient(cred, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create arm client: %w", err)
	}

	return &AzureDirectory{graph: graph, arm: arm}, nil
}

func (d *AzureDirectory) GetIdentity(ctx context.Context, objectID string) (*models.Identity, error) {
	return d.graph.GetIdentity(ctx, objectID)
}

func (d *AzureDirectory) SearchPrincipals(ctx context.Context, query string) ([]models.Identity, error) {
	return d.graph.SearchPrincipals(ctx, query)
}

func (d *AzureDirectory) GetDirectGroupMemberships(ctx context.Context, principal *models.Identity) ([]string, error) {
	return d.graph.GetDirectGroupMemberships(ctx, principal)
}

func (d *AzureDirectory) GetGroupParents(ctx context.Context, groupID string) ([]string, error) {
	return d.graph.GetGroupParents(ctx, groupID)
}

func (d *AzureDirectory) GetGroup(ctx context.Context, groupID string) (*models.SecurityGroup, error) {
	return d.graph.GetGroup(ctx, groupID)
}

func (d *AzureDirectory) GetRoleAssignments(ctx context.Context, principalID string) ([]models.RoleAssignment, error) {
	return d.arm.GetRoleAssignments(ctx, principalID)
}

func (d *AzureDirectory) GetApiPermissions(ctx context.Context, principal *models.Identity) ([]models.ApiPermission, error) {
	return d.graph.GetApiPermissions(ctx, principal)
}
