package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voltbot/volt/internal/tools"
)

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage the tool registry",
		Long: `Manage registered tools. Built-in tools ship with the binary;
persisted tools are JSON definitions under <data-dir>/tools/ and can be
imported, exported, and removed.`,
	}
	cmd.AddCommand(
		buildToolsListCmd(),
		buildToolsImportCmd(),
		buildToolsExportCmd(),
		buildToolsRemoveCmd(),
	)
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tCATEGORY\tDESCRIPTION")
			for _, tool := range rt.registry.All() {
				kind, _ := rt.registry.KindOf(tool.Name())
				category := tools.DefaultCategory
				if c, ok := tool.(tools.Categorized); ok && c.Category() != "" {
					category = c.Category()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tool.Name(), kind, category, tool.Description())
			}
			return w.Flush()
		},
	}
}

func buildToolsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import tool definitions from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			n, err := rt.registry.Import(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tool(s).\n", n)
			return nil
		},
	}
}

func buildToolsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export persisted tool definitions as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			data, err := rt.registry.Export()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func buildToolsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [name]",
		Short: "Remove a persisted tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.registry.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", args[0])
			return nil
		},
	}
}
