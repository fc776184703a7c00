package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/spf13/cobra"

	"otto/internal/orchestrator"
	"otto/internal/ports"
	"otto/internal/utils/id"
)

const (
	renderWidth = 100
	msRound     = 10 * time.Millisecond
)

func newOrchestrateCmd() *cobra.Command {
	var searchMode string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "orchestrate <task description>",
		Short: "Plan and execute a task, streaming progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(configPath, false)
			if err != nil {
				return exitErr(exitUnavailable, err)
			}

			description := strings.Join(args, " ")
			switch searchMode {
			case "web":
				description = "[WebSearch] " + description
			case "deep":
				description = "[DeepResearch] " + description
			case "":
			default:
				return exitErr(exitValidation, fmt.Errorf("unknown --search mode %q (want web or deep)", searchMode))
			}

			taskID := id.NewTaskID()
			stream, cancelSub := container.Bus.Subscribe(taskID)
			defer cancelSub()
			if !jsonOutput {
				go printProgress(stream)
			}

			// First interrupt cancels cooperatively, the second kills.
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				<-sigs
				fmt.Fprintln(os.Stderr, yellow("cancelling, press Ctrl-C again to force"))
				_ = container.Orchestrator.Cancel(taskID)
				<-sigs
				os.Exit(exitCancelled)
			}()

			result, err := container.Orchestrator.Orchestrate(cmd.Context(),
				orchestrator.Request{TaskID: taskID, Description: description})
			if err != nil {
				return err
			}
			printResult(result, jsonOutput)

			switch result.Status {
			case ports.PlanCancelled:
				return exitErr(exitCancelled, errors.New("task cancelled"))
			case ports.PlanFailed:
				return exitErr(exitFailure, errors.New(resultError(result)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&searchMode, "search", "", "force search mode: web or deep")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the raw result as JSON")
	return cmd
}

func printProgress(stream <-chan ports.Event) {
	for event := range stream {
		switch ev := event.(type) {
		case *ports.ProgressEvent:
			fmt.Printf("%s [%3.0f%%] %s\n", blue("step"), ev.Progress*100, ev.CurrentStepTitle)
		case *ports.CompletionEvent:
			fmt.Printf("%s %.0f%% of steps succeeded in %s\n",
				green("done"), ev.SuccessRate*100, ev.TotalExecutionTime.Round(msRound))
		case *ports.FailureEvent:
			if ev.Error != nil {
				fmt.Printf("%s %s: %s\n", red("fail"), ev.Error.StepID, ev.Error.Message)
			}
		}
	}
}

func printResult(result *ports.OrchestrationResult, asJSON bool) {
	if asJSON {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, red("Error: ")+err.Error())
			return
		}
		fmt.Println(string(encoded))
		return
	}

	if result.PlanResult != nil {
		steps := make([]*ports.StepResult, 0, len(result.PlanResult.StepResults))
		for _, sr := range result.PlanResult.StepResults {
			steps = append(steps, sr)
		}
		sort.Slice(steps, func(i, j int) bool { return steps[i].StartedAt.Before(steps[j].StartedAt) })
		for _, sr := range steps {
			fmt.Printf("  %s %s (%d attempt(s))\n", stateGlyph(sr.State), sr.StepID, sr.Attempts)
		}
	}

	if result.Response != "" {
		fmt.Println()
		os.Stdout.Write(markdown.Render(result.Response, renderWidth, 2))
	}
	fmt.Printf("\n%s %s in %s\n", bold("status:"), statusColor(result.Status), result.Duration.Round(msRound))
}

func stateGlyph(state ports.StepState) string {
	switch state {
	case ports.StepSucceeded:
		return green("ok")
	case ports.StepFailed:
		return red("failed")
	case ports.StepSkipped:
		return gray("skipped")
	default:
		return string(state)
	}
}

func statusColor(status ports.PlanStatus) string {
	switch status {
	case ports.PlanSuccess:
		return green(string(status))
	case ports.PlanPartial:
		return yellow(string(status))
	case ports.PlanCancelled:
		return gray(string(status))
	default:
		return red(string(status))
	}
}

func resultError(result *ports.OrchestrationResult) string {
	if result.Error != "" {
		return result.Error
	}
	return "task failed"
}
