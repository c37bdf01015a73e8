package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/permscope/permscope/internal/common"
	"github.com/permscope/permscope/internal/resolver"
)

var resolveOutput string

var resolveCmd = &cobra.Command{
	Use:     "resolve <object-id|name>",
	Short:   "Resolve the effective permissions of a principal",
	Args:    cobra.ExactArgs(1),
	PreRunE: preRunConfigE,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildResolver()
		if err != nil {
			return err
		}

		objectID, err := resolveTarget(cmd.Context(), engine, args[0])
		if err != nil {
			return err
		}

		result, err := engine.ResolveIdentity(cmd.Context(), objectID)
		if err != nil {
			return err
		}

		if resolveOutput == "json" {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		}

		fmt.Printf("%s (%s)\n", result.Identity.GetLabel(), result.Identity.Kind)
		fmt.Printf("  Direct role assignments: %d\n", len(result.DirectRoleAssignments))
		fmt.Printf("  Ancestor groups:         %d\n", len(result.Groups))
		fmt.Printf("  Effective assignments:   %d\n", len(result.RoleAssignments))
		fmt.Printf("  API permissions:         %d\n", len(result.ApiPermissions))

		for _, assignment := range result.RoleAssignments {
			fmt.Printf("    - %s @ %s\n", assignment.RoleName, assignment.Scope)
		}
		for _, permission := range result.ApiPermissions {
			fmt.Printf("    - %s (%s) on %s\n", permission.Value, permission.Kind, permission.ResourceName)
		}

		if result.Partial {
			fmt.Printf("  WARNING: %d group(s) could not be expanded: %v\n",
				len(result.FailedGroupIDs), result.FailedGroupIDs)
		}
		return nil
	},
}

// resolveTarget maps the command argument to an object ID. Anything that
// is not a UUID is treated as a search query that must identify exactly
// one principal.
func resolveTarget(ctx context.Context, engine *resolver.Resolver, arg string) (string, error) {
	if _, err := uuid.Parse(arg); err == nil {
		return arg, nil
	}

	result, err := engine.SearchIdentities(ctx, arg)
	if err != nil {
		return "", err
	}
	if result.IsEmpty() {
		return "", fmt.Errorf("no principal matches %q", arg)
	}
	if single, ok := result.Single(); ok {
		return single.ObjectID, nil
	}

	// Matches on email or app ID may not carry the query in their display
	// name; when exactly one candidate does, it wins.
	var hits []string
	for _, identity := range result.Identities {
		if common.ContainsInsensitive(identity.DisplayName, arg) {
			hits = append(hits, identity.ObjectID)
		}
	}
	if len(hits) == 1 {
		return hits[0], nil
	}

	for _, identity := range result.Identities {
		fmt.Printf("%s  %-30s  %s\n", identity.ObjectID, identity.GetLabel(), identity.Kind)
	}
	return "", fmt.Errorf("%d principals match %q; pass an object ID", len(result.Identities), arg)
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "text", "Output format (text or json)")
	rootCmd.AddCommand(resolveCmd)
}
