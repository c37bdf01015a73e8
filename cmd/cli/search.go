package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	Short:   "Search directory principals by name, UPN or app ID",
	Args:    cobra.ExactArgs(1),
	PreRunE: preRunConfigE,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildResolver()
		if err != nil {
			return err
		}

		result, err := engine.SearchIdentities(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if result.IsEmpty() {
			fmt.Println("No matching principals found")
			return nil
		}

		for _, identity := range result.Identities {
			fmt.Printf("%s  %-30s  %s\n", identity.ObjectID, identity.GetLabel(), identity.Kind)
		}

		if result.HasMultipleResults {
			fmt.Printf("\n%d principals matched; pass an object ID to 'resolve' to pick one\n",
				len(result.Identities))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
