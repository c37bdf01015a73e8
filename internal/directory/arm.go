package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/sirupsen/logrus"

	"github.com/permscope/permscope/internal/models"
)

// ARMClient lists Azure role assignments for a principal across one pinned
// subscription or every subscription visible to the credential.
type ARMClient struct {
	cred           azcore.TokenCredential
	subscriptionID string

	subscriptions *armsubscriptions.Client
	roleDefs      *armauthorization.RoleDefinitionsClient

	// Role assignment clients are scoped per subscription; constructed
	// lazily and reused.
	assignmentsMu sync.Mutex
	assignments   map[string]*armauthorization.RoleAssignmentsClient

	// Role definition IDs map to stable role names; memoized for the
	// lifetime of the client.
	roleNames sync.Map // map[string]string
}

// NewARMClient creates the ARM-side directory client. subscriptionID may be
// empty to scan all visible subscriptions.
func NewARMClient(cred azcore.TokenCredential, subscriptionID string) (*ARMClient, error) {
	subscriptions, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %w", err)
	}

	roleDefs, err := armauthorization.NewRoleDefinitionsClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create role definitions client: %w", err)
	}

	return &ARMClient{
		cred:           cred,
		subscriptionID: subscriptionID,
		subscriptions:  subscriptions,
		roleDefs:       roleDefs,
		assignments:    make(map[string]*armauthorization.RoleAssignmentsClient),
	}, nil
}

// GetRoleAssignments returns every role assignment bound to the principal
// across the visible subscription scopes.
func (c *ARMClient) GetRoleAssignments(ctx context.Context, principalID string) ([]models.RoleAssignment, error) {
	subscriptionIDs, err := c.subscriptionIDs(ctx)
	if err != nil {
		return nil, err
	}

	var results []models.RoleAssignment
	for _, subscriptionID := range subscriptionIDs {
		assignments, err := c.assignmentsForSubscription(ctx, subscriptionID, principalID)
		if err != nil {
			return nil, err
		}
		results = append(results, assignments...)
	}

	logrus.WithFields(logrus.Fields{
		"principal_id":  principalID,
		"subscriptions": len(subscriptionIDs),
		"assignments":   len(results),
	}).Debug("Listed role assignments")

	return results, nil
}

func (c *ARMClient) assignmentsForSubscription(ctx context.Context, subscriptionID, principalID string) ([]models.RoleAssignment, error) {
	client, err := c.assignmentsClient(subscriptionID)
	if err != nil {
		return nil, models.NewPermanentError("get_role_assignments", err)
	}

	scope := fmt.Sprintf("/subscriptions/%s", subscriptionID)
	filter := fmt.Sprintf("principalId eq '%s'", principalID)

	var results []models.RoleAssignment
	pager := client.NewListForScopePager(scope, &armauthorization.RoleAssignmentsClientListForScopeOptions{
		Filter: &filter,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("get_role_assignments", err)
		}

		for _, assignment := range page.Value {
			if assignment.Properties == nil {
				continue
			}

			record := models.RoleAssignment{PrincipalID: principalID}
			if assignment.Name != nil {
				record.ID = *assignment.Name
			}
			if assignment.Properties.Scope != nil {
				record.Scope = *assignment.Properties.Scope
			}
			if assignment.Properties.RoleDefinitionID != nil {
				record.RoleName = c.roleName(ctx, *assignment.Properties.RoleDefinitionID)
			}
			results = append(results, record)
		}
	}
	return results, nil
}

func (c *ARMClient) assignmentsClient(subscriptionID string) (*armauthorization.RoleAssignmentsClient, error) {
	c.assignmentsMu.Lock()
	defer c.assignmentsMu.Unlock()

	if client, ok := c.assignments[subscriptionID]; ok {
		return client, nil
	}

	client, err := armauthorization.NewRoleAssignmentsClient(subscriptionID, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create role assignments client: %w", err)
	}
	c.assignments[subscriptionID] = client
	return client, nil
}

func (c *ARMClient) subscriptionIDs(ctx context.Context) ([]string, error) {
	if len(c.subscriptionID) > 0 {
		return []string{c.subscriptionID}, nil
	}

	var ids []string
	pager := c.subscriptions.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("list_subscriptions", err)
		}
		for _, subscription := range page.Value {
			if subscription.SubscriptionID != nil {
				ids = append(ids, *subscription.SubscriptionID)
			}
		}
	}
	return ids, nil
}

// roleName resolves a role definition ID to its display name. Failures
// degrade to the raw definition ID so assignments are never dropped over a
// cosmetic lookup.
func (c *ARMClient) roleName(ctx context.Context, roleDefinitionID string) string {
	if cached, ok := c.roleNames.Load(roleDefinitionID); ok {
		return cached.(string)
	}

	definition, err := c.roleDefs.GetByID(ctx, roleDefinitionID, nil)
	if err != nil {
		logrus.WithError(err).WithField("role_definition_id", roleDefinitionID).
			Debug("Failed to resolve role definition name")
		return roleDefinitionID
	}

	name := roleDefinitionID
	if definition.Properties != nil && definition.Properties.RoleName != nil {
		name = *definition.Properties.RoleName
	}
	c.roleNames.Store(roleDefinitionID, name)
	return name
}
