package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and move the durable memory tiers",
	}
	cmd.AddCommand(newMemoryExportCmd())
	cmd.AddCommand(newMemoryImportCmd())
	cmd.AddCommand(newMemoryStatsCmd())
	cmd.AddCommand(newMemoryCompressCmd())
	return cmd
}

func newMemoryExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write episodes, concepts, facts, and procedures as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(configPath, false)
			if err != nil {
				return exitErr(exitUnavailable, err)
			}

			w := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := container.Memory.Export(w); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(os.Stderr, "%s exported memory to %s\n", green("ok"), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newMemoryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Merge an exported snapshot into the live stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(configPath, false)
			if err != nil {
				return exitErr(exitUnavailable, err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if err := container.Memory.Import(cmd.Context(), f); err != nil {
				return err
			}
			fmt.Printf("%s imported %s\n", green("ok"), args[0])
			return nil
		},
	}
}

func newMemoryCompressCmd() *cobra.Command {
	var thresholdDays int
	var ratio float64

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Fold old episodes into compressed summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(configPath, false)
			if err != nil {
				return exitErr(exitUnavailable, err)
			}

			report, err := container.Memory.CompressOldMemory(cmd.Context(), thresholdDays, ratio)
			if err != nil {
				return err
			}
			fmt.Printf("%s compressed %d of %d episodes into %d summaries\n",
				green("ok"), report.Compressed, report.Examined, report.Clusters)
			return nil
		},
	}
	cmd.Flags().IntVar(&thresholdDays, "older-than", 30, "only episodes older than this many days")
	cmd.Flags().Float64Var(&ratio, "ratio", 0.5, "fraction of eligible episodes to compress")
	return cmd
}

func newMemoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print item counts per memory tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(configPath, false)
			if err != nil {
				return exitErr(exitUnavailable, err)
			}

			stats := container.Memory.Stats()
			for _, tier := range []string{"working", "episodic", "concepts", "facts", "procedural"} {
				fmt.Printf("%-12s %d\n", tier, stats[tier])
			}
			return nil
		},
	}
}
