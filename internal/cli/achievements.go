package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whispie/whispie/internal/app/progression"
	"github.com/whispie/whispie/internal/daemon"
)

func init() {
	achievementsCmd.Flags().BoolVar(&achievementsJSON, "json", false, "Print as JSON")
	achievementsCmd.Flags().StringVar(&achievementsUser, "user", "", "Show unlock status for this user")

	seedCmd.Flags().StringVar(&seedFile, "file", "", "Catalog YAML file (default: built-in catalog)")
	exportCmd.Flags().StringVarP(&exportFile, "output", "o", "", "Write to file instead of stdout")

	achievementsCmd.AddCommand(seedCmd, exportCmd)
	rootCmd.AddCommand(achievementsCmd)
}

var (
	achievementsJSON bool
	achievementsUser string
	seedFile         string
	exportFile       string
)

var achievementsCmd = &cobra.Command{
	Use:     "achievements",
	Aliases: []string{"ach"},
	Short:   "List the active achievement catalog",
	Args:    cobra.NoArgs,
	RunE:    runAchievements,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert the achievement catalog into the store",
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the active catalog as YAML",
	Long:  `Write the active catalog in the format 'achievements seed --file' reads.`,
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func runAchievements(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	d, err := openDaemon(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	p := newPrinter(cmd.OutOrStdout())

	if achievementsUser != "" {
		groups, err := d.Service.Achievements(ctx, normalizeUserID(achievementsUser))
		if err != nil {
			return err
		}
		if achievementsJSON {
			return p.json(groups)
		}
		p.achievementGroups(groups)
		return nil
	}

	defs, err := d.Service.Catalog(ctx)
	if err != nil {
		return err
	}
	if achievementsJSON {
		return p.json(defs)
	}
	if len(defs) == 0 {
		p.println("No active achievements. Run 'whispie achievements seed' to load the catalog.")
		return nil
	}
	p.catalog(defs)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	defs := progression.DefaultCatalog()
	if seedFile != "" {
		loaded, err := progression.LoadCatalog(seedFile)
		if err != nil {
			return err
		}
		defs = loaded
	}

	ctx := commandContext(cmd)
	d, err := openDaemon(ctx, true, daemon.WithoutCatalogSeed())
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Service.SeedCatalog(ctx, defs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d achievements.\n", len(defs))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	d, err := openDaemon(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	defs, err := d.Service.Catalog(ctx)
	if err != nil {
		return err
	}
	b, err := progression.MarshalCatalog(defs)
	if err != nil {
		return err
	}
	if exportFile != "" {
		return os.WriteFile(exportFile, b, 0644)
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}
