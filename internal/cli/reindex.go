package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/index"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the candidate index from the available profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return reindex(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)

	reindexCmd.Flags().BoolP("force", "f", false, "publish a new snapshot even when the corpus is unchanged")
}

func reindex(cmd *cobra.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Index.Backend == "memory" {
		log.Warn("memory index backend does not outlive this command; use qdrant or pgvector")
	}

	ctx := backgroundContext(cmd)

	c, err := newComponents(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	gemini, err := c.gemini(ctx)
	if err != nil {
		return err
	}

	idx, err := c.candidateIndex(ctx, gemini)
	if err != nil {
		return err
	}

	profiles, err := c.profiles.ListAvailable(ctx)
	if err != nil {
		return err
	}
	log.Info("rebuilding index", zap.Int("profiles", len(profiles)))

	force, _ := cmd.Flags().GetBool("force")

	var (
		snap    *index.Snapshot
		rebuilt = true
	)
	if force {
		snap, err = idx.Build(ctx, profiles)
	} else {
		snap, rebuilt, err = idx.Ensure(ctx, profiles)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "version=%s size=%d dimension=%d rebuilt=%t\n", snap.Version, snap.Size, snap.Dimension, rebuilt)
	return nil
}
