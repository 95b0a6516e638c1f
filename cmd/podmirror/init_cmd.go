package main

import (
	"fmt"

	"github.com/podmirror/podmirror/internal/config"
	"github.com/spf13/cobra"
)

var initPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a project config for a local directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		project, path, created, err := config.Init(initPath)
		if err != nil {
			return err
		}

		if created {
			fmt.Printf("%s created project %q\n", green("✓"), project)
			fmt.Printf("  config: %s\n", path)
			fmt.Println("\nEdit the config, then run:")
			fmt.Printf("  %s\n", cyan("podmirror sync "+project))
			return nil
		}

		fmt.Printf("%s project %q already configured\n", green("✓"), project)
		fmt.Printf("  config: %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "local directory to mirror")
}
