package main

import (
	"fmt"

	"github.com/podmirror/podmirror/internal/config"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List configured projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		projects, err := config.ListProjects()
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects configured. Run `podmirror init --path <dir>` first.")
			return nil
		}

		for _, p := range projects {
			fmt.Printf("%s\n", cyan(p.Name))
			fmt.Printf("  local:     %s\n", p.LocalPath)
			fmt.Printf("  remote:    %s\n", p.RemotePath)
			fmt.Printf("  namespace: %s\n", p.Namespace)
			if p.Cluster != "" {
				fmt.Printf("  cluster:   %s\n", p.Cluster)
			}
		}
		return nil
	},
}
