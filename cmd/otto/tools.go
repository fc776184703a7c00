package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(configPath, false)
			if err != nil {
				return exitErr(exitUnavailable, err)
			}

			descriptors := container.Registry.List()
			sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
			for _, d := range descriptors {
				badge := gray("effectful")
				if d.Idempotent {
					badge = green("idempotent")
				}
				fmt.Printf("%-16s %s  %s\n", bold(d.Name), badge, d.Description)
			}
			return nil
		},
	}
}
