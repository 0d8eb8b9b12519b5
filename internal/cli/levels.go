package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whispie/whispie/internal/app/progression"
)

func init() {
	levelsCmd.Flags().IntVar(&levelsFrom, "from", 1, "First level to show")
	levelsCmd.Flags().IntVar(&levelsTo, "to", 20, "Last level to show")
	levelsCmd.Flags().Int64Var(&levelsXP, "xp", -1, "Show the level reached with this much XP")
	rootCmd.AddCommand(levelsCmd)
}

var (
	levelsFrom int
	levelsTo   int
	levelsXP   int64
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Print the level curve",
	Args:  cobra.NoArgs,
	RunE:  runLevels,
}

func runLevels(cmd *cobra.Command, args []string) error {
	p := newPrinter(cmd.OutOrStdout())

	if levelsXP >= 0 {
		level := progression.LevelFromXP(levelsXP)
		p.printf("%d XP is level %d (%s), %d%% of the way to level %d, %d XP to go.\n",
			levelsXP, level, progression.LevelTitle(level),
			progression.LevelProgress(levelsXP), level+1, progression.XPToNextLevel(levelsXP))
		return nil
	}

	if levelsFrom < 1 || levelsTo < levelsFrom {
		return fmt.Errorf("need 1 <= --from <= --to, got %d..%d", levelsFrom, levelsTo)
	}
	p.levels(progression.LevelCurve(levelsFrom, levelsTo))
	return nil
}
