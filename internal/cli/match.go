package cli

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var matchCmd = &cobra.Command{
	Use:   "match <job-id>",
	Short: "Run the matching pipeline for one job and print the match record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return match(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}

func match(cmd *cobra.Command, arg string) error {
	jobID, err := uuid.Parse(arg)
	if err != nil {
		return fmt.Errorf("invalid job ID %q: %w", arg, err)
	}

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := backgroundContext(cmd)

	c, err := newComponents(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	worker, _, _, err := c.worker(ctx)
	if err != nil {
		return err
	}

	record, err := worker.Match(ctx, jobID)
	if record != nil {
		out, _ := json.MarshalIndent(record, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	if err != nil {
		log.Error("matching run failed", zap.Error(err))
		return err
	}
	return nil
}
