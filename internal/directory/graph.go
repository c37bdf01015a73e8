package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/google/uuid"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	graphgroups "github.com/microsoftgraph/msgraph-sdk-go/groups"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	graphgrants "github.com/microsoftgraph/msgraph-sdk-go/oauth2permissiongrants"
	graphsps "github.com/microsoftgraph/msgraph-sdk-go/serviceprincipals"
	graphusers "github.com/microsoftgraph/msgraph-sdk-go/users"
	"github.com/sirupsen/logrus"

	"github.com/permscope/permscope/internal/models"
)

const graphDefaultScope = "https://graph.microsoft.com/.default"

// GraphClient issues paged queries against Microsoft Graph for identities,
// group memberships and API permissions.
type GraphClient struct {
	client  *msgraphsdk.GraphServiceClient
	adapter abstractions.RequestAdapter

	// Memoizes resource service principals looked up while mapping app
	// role IDs to permission values.
	resourceMu sync.Mutex
	resources  map[string]graphmodels.ServicePrincipalable
}

// NewGraphClient creates a Graph client from an Azure credential.
func NewGraphClient(cred azcore.TokenCredential) (*GraphClient, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{graphDefaultScope})
	if err != nil {
		return nil, fmt.Errorf("failed to create Microsoft Graph client: %w", err)
	}

	return &GraphClient{
		client:    client,
		adapter:   client.GetAdapter(),
		resources: make(map[string]graphmodels.ServicePrincipalable),
	}, nil
}

// GetIdentity fetches one principal by object ID and maps it onto the
// tagged identity model.
func (c *GraphClient) GetIdentity(ctx context.Context, objectID string) (*models.Identity, error) {
	obj, err := c.client.DirectoryObjects().ByDirectoryObjectId(objectID).Get(ctx, nil)
	if err != nil {
		return nil, classify("get_identity", err)
	}

	switch principal := obj.(type) {
	case graphmodels.Userable:
		identity := identityFromUser(principal)
		return &identity, nil
	case graphmodels.Groupable:
		identity := identityFromGroup(principal)
		return &identity, nil
	case graphmodels.ServicePrincipalable:
		identity := identityFromServicePrincipal(principal)
		c.attachAppRegistration(ctx, &identity)
		return &identity, nil
	default:
		return nil, models.NewPermanentError("get_identity",
			fmt.Errorf("object %s is not a resolvable principal type", objectID))
	}
}

// SearchPrincipals queries users, groups and service principals whose
// display name (or UPN / app ID) matches the query.
func (c *GraphClient) SearchPrincipals(ctx context.Context, query string) ([]models.Identity, error) {
	escaped := strings.ReplaceAll(query, "'", "''")

	var identities []models.Identity

	users, err := c.searchUsers(ctx, escaped)
	if err != nil {
		return nil, err
	}
	identities = append(identities, users...)

	groups, err := c.searchGroups(ctx, escaped)
	if err != nil {
		return nil, err
	}
	identities = append(identities, groups...)

	sps, err := c.searchServicePrincipals(ctx, escaped)
	if err != nil {
		return nil, err
	}
	identities = append(identities, sps...)

	logrus.WithFields(logrus.Fields{
		"query": query,
		"count": len(identities),
	}).Debug("Searched directory principals")

	return identities, nil
}

func (c *GraphClient) searchUsers(ctx context.Context, escaped string) ([]models.Identity, error) {
	filter := fmt.Sprintf(
		"startswith(displayName,'%s') or startswith(userPrincipalName,'%s') or mail eq '%s'",
		escaped, escaped, escaped)

	resp, err := c.client.Users().Get(ctx, &graphusers.UsersRequestBuilderGetRequestConfiguration{
		QueryParameters: &graphusers.UsersRequestBuilderGetQueryParameters{
			Filter: &filter,
		},
	})
	if err != nil {
		return nil, classify("search_users", err)
	}

	var identities []models.Identity
	err = c.iterateUsers(ctx, resp, func(user graphmodels.Userable) {
		identities = append(identities, identityFromUser(user))
	})
	if err != nil {
		return nil, classify("search_users", err)
	}
	return identities, nil
}

func (c *GraphClient) searchGroups(ctx context.Context, escaped string) ([]models.Identity, error) {
	filter := fmt.Sprintf("startswith(displayName,'%s')", escaped)

	resp, err := c.client.Groups().Get(ctx, &graphgroups.GroupsRequestBuilderGetRequestConfiguration{
		QueryParameters: &graphgroups.GroupsRequestBuilderGetQueryParameters{
			Filter: &filter,
		},
	})
	if err != nil {
		return nil, classify("search_groups", err)
	}

	var identities []models.Identity
	err = c.iterateGroups(ctx, resp, func(group graphmodels.Groupable) {
		identities = append(identities, identityFromGroup(group))
	})
	if err != nil {
		return nil, classify("search_groups", err)
	}
	return identities, nil
}

func (c *GraphClient) searchServicePrincipals(ctx context.Context, escaped string) ([]models.Identity, error) {
	filter := fmt.Sprintf("startswith(displayName,'%s')", escaped)
	if _, err := uuid.Parse(escaped); err == nil {
		filter = fmt.Sprintf("%s or appId eq '%s'", filter, escaped)
	}

	resp, err := c.client.ServicePrincipals().Get(ctx, &graphsps.ServicePrincipalsRequestBuilderGetRequestConfiguration{
		QueryParameters: &graphsps.ServicePrincipalsRequestBuilderGetQueryParameters{
			Filter: &filter,
		},
	})
	if err != nil {
		return nil, classify("search_service_principals", err)
	}

	var identities []models.Identity
	err = c.iterateServicePrincipals(ctx, resp, func(sp graphmodels.ServicePrincipalable) {
		identities = append(identities, identityFromServicePrincipal(sp))
	})
	if err != nil {
		return nil, classify("search_service_principals", err)
	}
	return identities, nil
}

// GetDirectGroupMemberships returns the object IDs of the groups the
// principal is directly a member of. The memberOf endpoint differs by
// principal kind; this is the one place the resolver branches on it.
func (c *GraphClient) GetDirectGroupMemberships(ctx context.Context, principal *models.Identity) ([]string, error) {
	if !principal.SupportsGroupMembership() {
		return nil, nil
	}

	var resp graphmodels.DirectoryObjectCollectionResponseable
	var err error

	switch {
	case principal.IsUser():
		resp, err = c.client.Users().ByUserId(principal.ObjectID).MemberOf().Get(ctx, nil)
	case principal.IsGroup():
		resp, err = c.client.Groups().ByGroupId(principal.ObjectID).MemberOf().Get(ctx, nil)
	default:
		resp, err = c.client.ServicePrincipals().ByServicePrincipalId(principal.ObjectID).MemberOf().Get(ctx, nil)
	}
	if err != nil {
		return nil, classify("get_direct_group_memberships", err)
	}

	ids, err := c.collectGroupIDs(ctx, resp)
	if err != nil {
		return nil, classify("get_direct_group_memberships", err)
	}
	return ids, nil
}

// GetGroupParents returns the object IDs of the groups the given group is
// nested under.
func (c *GraphClient) GetGroupParents(ctx context.Context, groupID string) ([]string, error) {
	resp, err := c.client.Groups().ByGroupId(groupID).MemberOf().Get(ctx, nil)
	if err != nil {
		return nil, classify("get_group_parents", err)
	}

	ids, err := c.collectGroupIDs(ctx, resp)
	if err != nil {
		return nil, classify("get_group_parents", err)
	}
	return ids, nil
}

// GetGroup fetches one group record. Role assignments and parent links are
// populated by the caller.
func (c *GraphClient) GetGroup(ctx context.Context, groupID string) (*models.SecurityGroup, error) {
	group, err := c.client.Groups().ByGroupId(groupID).Get(ctx, nil)
	if err != nil {
		return nil, classify("get_group", err)
	}

	result := &models.SecurityGroup{ObjectID: groupID}
	if name := group.GetDisplayName(); name != nil {
		result.DisplayName = *name
	}
	if desc := group.GetDescription(); desc != nil {
		result.Description = *desc
	}
	return result, nil
}

// GetApiPermissions returns app role assignments (application permissions)
// and OAuth2 permission grants (delegated permissions) for service
// principal kinds. Other kinds carry no API permissions.
func (c *GraphClient) GetApiPermissions(ctx context.Context, principal *models.Identity) ([]models.ApiPermission, error) {
	if !principal.IsServicePrincipal() {
		return nil, nil
	}

	permissions, err := c.appRolePermissions(ctx, principal.ObjectID)
	if err != nil {
		return nil, err
	}

	delegated, err := c.delegatedPermissions(ctx, principal.ObjectID)
	if err != nil {
		return nil, err
	}

	return append(permissions, delegated...), nil
}

func (c *GraphClient) appRolePermissions(ctx context.Context, objectID string) ([]models.ApiPermission, error) {
	resp, err := c.client.ServicePrincipals().ByServicePrincipalId(objectID).AppRoleAssignments().Get(ctx, nil)
	if err != nil {
		return nil, classify("get_api_permissions", err)
	}

	iter, err := msgraphcore.NewPageIterator[graphmodels.AppRoleAssignmentable](
		resp, c.adapter, graphmodels.CreateAppRoleAssignmentCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, classify("get_api_permissions", err)
	}

	var permissions []models.ApiPermission
	err = iter.Iterate(ctx, func(assignment graphmodels.AppRoleAssignmentable) bool {
		permission := models.ApiPermission{Kind: models.ApiPermissionKindApplication}
		if id := assignment.GetId(); id != nil {
			permission.ID = *id
		}
		if name := assignment.GetResourceDisplayName(); name != nil {
			permission.ResourceName = *name
		}
		if resourceID := assignment.GetResourceId(); resourceID != nil {
			permission.ResourceID = resourceID.String()
			if roleID := assignment.GetAppRoleId(); roleID != nil {
				permission.Value = c.appRoleValue(ctx, permission.ResourceID, *roleID)
			}
		}
		permissions = append(permissions, permission)
		return true
	})
	if err != nil {
		return nil, classify("get_api_permissions", err)
	}
	return permissions, nil
}

func (c *GraphClient) delegatedPermissions(ctx context.Context, objectID string) ([]models.ApiPermission, error) {
	filter := fmt.Sprintf("clientId eq '%s'", objectID)

	resp, err := c.client.Oauth2PermissionGrants().Get(ctx, &graphgrants.Oauth2PermissionGrantsRequestBuilderGetRequestConfiguration{
		QueryParameters: &graphgrants.Oauth2PermissionGrantsRequestBuilderGetQueryParameters{
			Filter: &filter,
		},
	})
	if err != nil {
		return nil, classify("get_api_permissions", err)
	}

	iter, err := msgraphcore.NewPageIterator[graphmodels.OAuth2PermissionGrantable](
		resp, c.adapter, graphmodels.CreateOAuth2PermissionGrantCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, classify("get_api_permissions", err)
	}

	var permissions []models.ApiPermission
	err = iter.Iterate(ctx, func(grant graphmodels.OAuth2PermissionGrantable) bool {
		grantID := ""
		if id := grant.GetId(); id != nil {
			grantID = *id
		}
		resourceID := ""
		if rid := grant.GetResourceId(); rid != nil {
			resourceID = *rid
		}

		// A single grant carries a space-separated scope list; surface one
		// permission per scope value.
		if scope := grant.GetScope(); scope != nil {
			for _, value := range strings.Fields(*scope) {
				permissions = append(permissions, models.ApiPermission{
					ID:         fmt.Sprintf("%s/%s", grantID, value),
					ResourceID: resourceID,
					Kind:       models.ApiPermissionKindDelegated,
					Value:      value,
				})
			}
		}
		return true
	})
	if err != nil {
		return nil, classify("get_api_permissions", err)
	}
	return permissions, nil
}

// appRoleValue maps an app role ID to its permission value by looking up
// the resource service principal's app role catalogue. Lookups are
// memoized per resource; failures degrade to an empty value rather than
// failing the permission fetch.
func (c *GraphClient) appRoleValue(ctx context.Context, resourceID string, roleID uuid.UUID) string {
	resource, err := c.resourceServicePrincipal(ctx, resourceID)
	if err != nil {
		logrus.WithError(err).WithField("resource_id", resourceID).
			Debug("Failed to resolve app role catalogue")
		return ""
	}

	for _, role := range resource.GetAppRoles() {
		if id := role.GetId(); id != nil && *id == roleID {
			if value := role.GetValue(); value != nil {
				return *value
			}
		}
	}
	return ""
}

func (c *GraphClient) resourceServicePrincipal(ctx context.Context, resourceID string) (graphmodels.ServicePrincipalable, error) {
	c.resourceMu.Lock()
	cached, ok := c.resources[resourceID]
	c.resourceMu.Unlock()
	if ok {
		return cached, nil
	}

	resource, err := c.client.ServicePrincipals().ByServicePrincipalId(resourceID).Get(ctx, nil)
	if err != nil {
		return nil, classify("get_resource_service_principal", err)
	}

	c.resourceMu.Lock()
	c.resources[resourceID] = resource
	c.resourceMu.Unlock()
	return resource, nil
}

// attachAppRegistration resolves the app registration object ID backing an
// Application service principal. Best effort; the identity is complete
// without it.
func (c *GraphClient) attachAppRegistration(ctx context.Context, identity *models.Identity) {
	if identity.ServicePrincipalType != models.ServicePrincipalTypeApplication || len(identity.AppID) == 0 {
		return
	}

	apps, err := c.client.ApplicationsWithAppId(&identity.AppID).Get(ctx, nil)
	if err != nil {
		logrus.WithError(err).WithField("app_id", identity.AppID).
			Debug("Failed to resolve app registration for service principal")
		return
	}
	if id := apps.GetId(); id != nil {
		identity.AppRegistrationObjectID = *id
	}
}

func (c *GraphClient) collectGroupIDs(ctx context.Context, resp graphmodels.DirectoryObjectCollectionResponseable) ([]string, error) {
	iter, err := msgraphcore.NewPageIterator[graphmodels.DirectoryObjectable](
		resp, c.adapter, graphmodels.CreateDirectoryObjectCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = iter.Iterate(ctx, func(obj graphmodels.DirectoryObjectable) bool {
		// memberOf can also return directory roles and administrative
		// units; only security groups participate in traversal.
		if group, ok := obj.(graphmodels.Groupable); ok {
			if id := group.GetId(); id != nil {
				ids = append(ids, *id)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *GraphClient) iterateUsers(ctx context.Context, resp graphmodels.UserCollectionResponseable, fn func(graphmodels.Userable)) error {
	iter, err := msgraphcore.NewPageIterator[graphmodels.Userable](
		resp, c.adapter, graphmodels.CreateUserCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return err
	}
	return iter.Iterate(ctx, func(user graphmodels.Userable) bool {
		fn(user)
		return true
	})
}

func (c *GraphClient) iterateGroups(ctx context.Context, resp graphmodels.GroupCollectionResponseable, fn func(graphmodels.Groupable)) error {
	iter, err := msgraphcore.NewPageIterator[graphmodels.Groupable](
		resp, c.adapter, graphmodels.CreateGroupCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return err
	}
	return iter.Iterate(ctx, func(group graphmodels.Groupable) bool {
		fn(group)
		return true
	})
}

func (c *GraphClient) iterateServicePrincipals(ctx context.Context, resp graphmodels.ServicePrincipalCollectionResponseable, fn func(graphmodels.ServicePrincipalable)) error {
	iter, err := msgraphcore.NewPageIterator[graphmodels.ServicePrincipalable](
		resp, c.adapter, graphmodels.CreateServicePrincipalCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return err
	}
	return iter.Iterate(ctx, func(sp graphmodels.ServicePrincipalable) bool {
		fn(sp)
		return true
	})
}

func identityFromUser(user graphmodels.Userable) models.Identity {
	identity := models.Identity{Kind: models.IdentityKindUser}
	if id := user.GetId(); id != nil {
		identity.ObjectID = *id
	}
	if name := user.GetDisplayName(); name != nil {
		identity.DisplayName = *name
	}
	if mail := user.GetMail(); mail != nil {
		identity.Email = *mail
	} else if upn := user.GetUserPrincipalName(); upn != nil {
		identity.Email = *upn
	}
	return identity
}

func identityFromGroup(group graphmodels.Groupable) models.Identity {
	identity := models.Identity{Kind: models.IdentityKindGroup}
	if id := group.GetId(); id != nil {
		identity.ObjectID = *id
	}
	if name := group.GetDisplayName(); name != nil {
		identity.DisplayName = *name
	}
	if mail := group.GetMail(); mail != nil {
		identity.Email = *mail
	}
	return identity
}

func identityFromServicePrincipal(sp graphmodels.ServicePrincipalable) models.Identity {
	identity := models.Identity{
		Kind:                 models.IdentityKindServicePrincipal,
		ServicePrincipalType: models.ServicePrincipalTypeApplication,
	}
	if id := sp.GetId(); id != nil {
		identity.ObjectID = *id
	}
	if appID := sp.GetAppId(); appID != nil {
		identity.AppID = *appID
	}
	if name := sp.GetDisplayName(); name != nil {
		identity.DisplayName = *name
	}

	if spType := sp.GetServicePrincipalType(); spType != nil && *spType == "ManagedIdentity" {
		identity.ServicePrincipalType = models.ServicePrincipalTypeManagedIdentity
		identity.Kind = models.IdentityKindSystemAssignedManagedIdentity
		// User-assigned managed identities are marked explicit in their
		// alternative names.
		for _, name := range sp.GetAlternativeNames() {
			if strings.Contains(name, "isExplicit=True") {
				identity.Kind = models.IdentityKindUserAssignedManagedIdentity
				break
			}
		}
	}
	return identity
}
