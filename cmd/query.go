package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// submitter is the part of the pool a one-shot query needs.
type submitter interface {
	Submit(ctx context.Context, task schemas.Task) (schemas.TaskResult, error)
}

func newSearchCmd() *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search [text...]",
		Short: "Searches trademarks by name and prints the matching records as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			q, err := schemas.NewSearchQuery(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return runOneShot(cmd, schemas.NewSearchTask(q))
		},
	}
	searchCmd.Flags().IntP("limit", "n", schemas.DefaultSearchLimit, "Maximum number of records to return.")
	searchCmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	searchCmd.Flags().String("target-url", "", "Research page to drive. (Overrides config/env)")
	return searchCmd
}

func newDetailCmd() *cobra.Command {
	detailCmd := &cobra.Command{
		Use:   "detail [application-no]",
		Short: "Fetches the detail view of one application and prints it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := schemas.NewDetailQuery(args[0])
			if err != nil {
				return err
			}
			return runOneShot(cmd, schemas.NewDetailTask(q))
		},
	}
	detailCmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	detailCmd.Flags().String("target-url", "", "Research page to drive. (Overrides config/env)")
	return detailCmd
}

// runOneShot opens a single-session pool, runs the task and prints the outcome.
func runOneShot(cmd *cobra.Command, task schemas.Task) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	oneShot := *cfg
	oneShot.Engine = config.EngineConfig{WorkerConcurrency: 1, QueueSize: 1}
	oneShot.Cache.Enabled = false

	logger := observability.GetLogger()
	comps, err := initializeComponents(ctx, &oneShot, logger)
	if err != nil {
		return err
	}
	defer comps.Shutdown(cfg.Server.ShutdownTimeout)

	return executeTask(ctx, comps.Engine, task, cmd.OutOrStdout())
}

// executeTask submits the task and writes the records or the detail as indented JSON.
func executeTask(ctx context.Context, exec submitter, task schemas.Task, out io.Writer) error {
	res, err := exec.Submit(ctx, task)
	if err != nil {
		return fmt.Errorf("%s task failed: %w", strings.ToLower(string(task.Kind)), err)
	}

	var payload interface{}
	switch task.Kind {
	case schemas.TaskSearch:
		records := res.Records
		if records == nil {
			records = []schemas.BrandRecord{}
		}
		payload = records
	case schemas.TaskDetail:
		if res.Detail == nil || !res.Detail.Found {
			return fmt.Errorf("%s numaralı başvuru bulunamadı", task.Detail.ApplicationNo)
		}
		payload = res.Detail
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
