package cli

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/models"
	"alfredoptarigan/consultant-matcher/internal/services"
)

var importCmd = &cobra.Command{
	Use:   "import-profiles <roster.pdf>",
	Short: "Import consultant profiles from a roster PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importProfiles(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("dry-run", false, "parse and validate the roster without writing to the database")
}

func importProfiles(cmd *cobra.Command, path string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	text, err := services.NewPDFParserService().ExtractText(path)
	if err != nil {
		return err
	}

	profiles, skipped := validProfiles(services.ExtractProfiles(text), validator.New(), log)
	log.Info("roster parsed", zap.String("file", path), zap.Int("profiles", len(profiles)), zap.Int("skipped", skipped))

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		for _, p := range profiles {
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> %d years, skills: %v\n", p.Name, p.Email, p.Experience, []string(p.Skills))
		}
		return nil
	}

	if len(profiles) == 0 {
		return fmt.Errorf("no valid profiles found in %s", path)
	}

	c, err := newComponents(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.profiles.UpsertByEmail(backgroundContext(cmd), profiles); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d profiles (%d skipped)\n", len(profiles), skipped)
	return nil
}

// validProfiles assigns identifiers and drops entries failing validation.
func validProfiles(parsed []models.ConsultantProfile, v *validator.Validate, log *zap.Logger) ([]models.ConsultantProfile, int) {
	out := make([]models.ConsultantProfile, 0, len(parsed))
	skipped := 0

	for _, p := range parsed {
		p.ID = uuid.New()
		if err := v.Struct(&p); err != nil {
			log.Warn("skipping invalid profile", zap.String("name", p.Name), zap.String("email", p.Email), zap.Error(err))
			skipped++
			continue
		}
		out = append(out, p)
	}
	return out, skipped
}
