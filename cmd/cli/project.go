package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var projectGroup = &cobra.Group{
	ID:    "project",
	Title: "Projects",
}

func init() {
	projectCreateCmd.Flags().String("name", "", "display name, defaults to the id")
	projectCreateCmd.Flags().String("description", "", "project description")
	projectCmd.AddCommand(projectCreateCmd, projectListCmd)
}

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "project",
	Short:   "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		project, err := application.Projects.Create(cmd.Context(), args[0], name, description)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created project %s (%s)\n", project.ID, project.Name)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		projects, err := application.Projects.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0) //nolint:mnd // column layout
		_, _ = fmt.Fprintln(w, "ID\tNAME\tCREATED")
		for _, p := range projects {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Created.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}
