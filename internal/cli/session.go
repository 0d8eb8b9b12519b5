package cli

import (
	"github.com/spf13/cobra"

	"github.com/whispie/whispie/internal/domain"
)

func init() {
	sessionCmd.Flags().IntVar(&sessionScore, "score", -1, "Overall score, 0-100 (required)")
	sessionCmd.Flags().StringVar(&sessionDifficulty, "difficulty", "", "easy, medium or hard (required)")
	sessionCmd.Flags().StringVar(&sessionID, "id", "", "Session ID; repeating an ID replays the stored result")
	sessionCmd.Flags().IntVar(&sessionMinutes, "minutes", 0, "Conversation length in minutes")
	sessionCmd.Flags().BoolVar(&sessionJSON, "json", false, "Print the outcome as JSON")
	_ = sessionCmd.MarkFlagRequired("score")
	_ = sessionCmd.MarkFlagRequired("difficulty")
	rootCmd.AddCommand(sessionCmd)
}

var (
	sessionScore      int
	sessionDifficulty string
	sessionID         string
	sessionMinutes    int
	sessionJSON       bool
)

var sessionCmd = &cobra.Command{
	Use:   "session <user-id>",
	Short: "Record a completed practice session",
	Long: `Record a completed practice session for a user and print the XP,
level and achievements it earned.

Example:
  whispie session 3f0c... --score 82 --difficulty medium --minutes 6`,
	Args: cobra.ExactArgs(1),
	RunE: runSession,
}

func runSession(cmd *cobra.Command, args []string) error {
	difficulty, err := domain.ParseDifficulty(sessionDifficulty)
	if err != nil {
		return err
	}
	result := domain.SessionResult{
		SessionID:       sessionID,
		OverallScore:    sessionScore,
		Difficulty:      difficulty,
		DurationMinutes: sessionMinutes,
	}
	if err := result.Validate(); err != nil {
		return err
	}

	ctx := commandContext(cmd)
	d, err := openDaemon(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	out, err := d.Service.CompleteSession(ctx, normalizeUserID(args[0]), result)
	if err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout())
	if sessionJSON {
		return p.json(out)
	}
	p.outcome(out)
	return nil
}
