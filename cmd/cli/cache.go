package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/permscope/permscope/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the directory record cache",
}

var cacheClearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Drop all cached directory records",
	PreRunE: preRunConfigE,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.New(cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to open cache store: %w", err)
		}

		if err := store.Clear(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}

		fmt.Println("Cache cleared")
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:     "invalidate <object-id>",
	Short:   "Drop the cached records of one principal",
	Args:    cobra.ExactArgs(1),
	PreRunE: preRunConfigE,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.New(cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to open cache store: %w", err)
		}

		for _, kind := range []cache.RecordKind{
			cache.RecordIdentity,
			cache.RecordMemberships,
			cache.RecordRoleAssignments,
			cache.RecordPermissions,
		} {
			store.Invalidate(cache.Key{PrincipalID: args[0], Kind: kind})
		}

		fmt.Printf("Cache invalidated for %s\n", args[0])
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}
