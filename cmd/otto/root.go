package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	otterrors "otto/internal/errors"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "otto",
		Short:         "Autonomous task orchestrator",
		Long:          "otto classifies a request, plans it into a step graph, and executes it\nover the registered tools with live progress events.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to otto-config.yaml")

	root.AddCommand(newServeCmd())
	root.AddCommand(newOrchestrateCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newMemoryCmd())
	root.AddCommand(newToolsCmd())
	return root
}

// Execute runs the CLI and maps errors onto stable exit codes.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: ")+err.Error())

		var coded *ExitCodeError
		switch {
		case errors.As(err, &coded):
			return coded.Code
		case otterrors.IsValidation(err):
			return exitValidation
		case otterrors.IsCancelled(err):
			return exitCancelled
		default:
			return exitFailure
		}
	}
	return exitOK
}
