package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show runtime configuration and component availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data dir:       %s\n", rt.cfg.DataDir)
			fmt.Fprintf(out, "Cloud API key:  %s\n", presence(rt.cfg.AnthropicAPIKey != ""))
			fmt.Fprintf(out, "Strong model:   %s\n", rt.cfg.StrongModel)
			fmt.Fprintf(out, "Fast model:     %s\n", rt.cfg.FastModel)

			small := "none"
			if rt.small != nil {
				small = fmt.Sprintf("%s (%s)", rt.small.Provider(), rt.small.Model())
			}
			fmt.Fprintf(out, "Small model:    %s\n", small)
			fmt.Fprintf(out, "On-device:      %s\n", presence(rt.onDevice != nil && rt.onDevice.Available()))

			fmt.Fprintf(out, "Tools:          %d registered\n", len(rt.registry.Names()))
			fmt.Fprintf(out, "Skills:         %d discovered\n", rt.manifest.Count())

			routerState := "empty"
			if rt.cache.Loaded() {
				routerState = fmt.Sprintf("%d categories", len(rt.cache.Categories()))
			}
			fmt.Fprintf(out, "Router cache:   %s\n", routerState)
			fmt.Fprintf(out, "Tasks:          %d scheduled\n", len(rt.store.List()))
			return nil
		},
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
