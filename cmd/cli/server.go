package main

import (
	"github.com/spf13/cobra"

	"github.com/permscope/permscope/internal/daemon"
)

var serverCmd = &cobra.Command{
	Use:     "server",
	Short:   "Start the permission resolution web service",
	PreRunE: preRunConfigE,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildResolver()
		if err != nil {
			return err
		}

		return daemon.NewServer(cfg, engine).Run()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
