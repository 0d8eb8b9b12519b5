package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	progressCmd.Flags().BoolVar(&progressJSON, "json", false, "Print the progress view as JSON")
	rootCmd.AddCommand(progressCmd)
}

var progressJSON bool

var progressCmd = &cobra.Command{
	Use:   "progress <user-id>",
	Short: "Show a user's level, streak and achievements",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgress,
}

func runProgress(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	d, err := openDaemon(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	view, err := d.Service.Progress(ctx, normalizeUserID(args[0]))
	if err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout())
	if progressJSON {
		return p.json(view)
	}
	p.progressCard(view)
	return nil
}
