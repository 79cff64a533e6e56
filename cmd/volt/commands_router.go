package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voltbot/volt/internal/ledger"
)

func buildRouterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "Manage the routing cache",
		Long: `Manage the cached router. Categories are generated by the small
model from the current skills and tools, then matched ahead of any
model call on every request.`,
	}
	cmd.AddCommand(
		buildRouterShowCmd(),
		buildRouterGenerateCmd(),
		buildRouterTestCmd(),
	)
	return cmd
}

func buildRouterShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show routing categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if !rt.cache.Loaded() {
				fmt.Fprintln(cmd.OutOrStdout(), "Router cache is empty. Run 'volt router generate'.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIER\tSKILL\tDESCRIPTION")
			for _, cat := range rt.cache.Categories() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cat.ID, cat.Plan.Tier, cat.Plan.Skill, cat.Description)
			}
			return w.Flush()
		},
	}
}

func buildRouterGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Regenerate routing categories",
		Long: `Regenerate routing categories from the current skill library and
tool registry using the small model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			led := ledger.New(rt.prices)
			if err := rt.cache.Generate(cmd.Context(), rt.small, led, rt.manifest.Summaries(), rt.registry.Names()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d categories.\n", len(rt.cache.Categories()))
			return nil
		},
	}
}

func buildRouterTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [request]",
		Short: "Show how a request would route",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			request := args[0]
			for _, a := range args[1:] {
				request += " " + a
			}
			result := rt.cache.Route(request)
			out := cmd.OutOrStdout()
			if result == nil {
				fmt.Fprintln(out, "No category matched; request would go through analysis.")
				return nil
			}
			fmt.Fprintf(out, "Category: %s\n", result.Category.ID)
			fmt.Fprintf(out, "Tier:     %s\n", result.Plan.Tier)
			if result.Plan.Answer != "" {
				fmt.Fprintf(out, "Answer:   %s\n", result.Plan.Answer)
			}
			if result.Plan.Skill != "" {
				fmt.Fprintf(out, "Skill:    %s\n", result.Plan.Skill)
			}
			if len(result.Plan.Tools) > 0 {
				fmt.Fprintf(out, "Tools:    %v\n", result.Plan.Tools)
			}
			return nil
		},
	}
}
