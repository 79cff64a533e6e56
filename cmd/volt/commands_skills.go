package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func buildSkillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Manage skills (SKILL.md-based)",
		Long: `Manage the skill library. Skills are directories under
<data-dir>/skills/, each holding a SKILL.md file with YAML frontmatter
and a markdown procedure body. Successful runs can create new skills
automatically.`,
	}
	cmd.AddCommand(
		buildSkillsListCmd(),
		buildSkillsShowCmd(),
	)
	return cmd
}

func buildSkillsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			sums := rt.manifest.Summaries()
			if len(sums) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No skills discovered.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, s := range sums {
				fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Description)
			}
			return w.Flush()
		},
	}
}

func buildSkillsShowCmd() *cobra.Command {
	var showContent bool
	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show skill details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			skill, ok := rt.manifest.Get(args[0])
			if !ok {
				return fmt.Errorf("skill %q not found", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:        %s\n", skill.Name)
			fmt.Fprintf(out, "Description: %s\n", skill.Description)
			if len(skill.Keywords) > 0 {
				fmt.Fprintf(out, "Keywords:    %v\n", skill.Keywords)
			}
			if len(skill.Tools) > 0 {
				fmt.Fprintf(out, "Tools:       %v\n", skill.Tools)
			}
			fmt.Fprintf(out, "Path:        %s\n", skill.Path)
			if showContent {
				fmt.Fprintln(out)
				fmt.Fprintln(out, skill.Content)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showContent, "content", false, "Show the full procedure body")
	return cmd
}
