package handlers

import (
	"context"
	"fmt"

	"github.com/pathfinder-net/deploynet/internal/validate"
)

// Validate checks the per-team validator submissions and optionally
// writes the merged canonical list.
func Validate(_ context.Context, configPath, writePath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ranges, err := validate.LoadTeamRanges(cfg.TeamsFile)
	if err != nil {
		return err
	}

	result, err := validate.Run(cfg.TeamsDir, ranges)
	if err != nil {
		return err
	}

	if !result.OK() {
		for _, issue := range result.Issues {
			fmt.Println(paintIssue(issue.String()))
		}
		return fmt.Errorf("validation failed with %d issue(s)", len(result.Issues))
	}

	fmt.Printf("All %d validator submissions are valid\n", len(result.Validators))
	if writePath != "" {
		if err := validate.WriteMerged(writePath, result.Validators); err != nil {
			return err
		}
		fmt.Printf("Wrote merged validator list to %s\n", writePath)
	}
	return nil
}

func paintIssue(s string) string {
	if !stdoutIsTerminal() {
		return s
	}
	return renderFailStyle.Render(s)
}
