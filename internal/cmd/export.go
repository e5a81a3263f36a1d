package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wolfsblu/stoca/internal/analyzer"
	"github.com/wolfsblu/stoca/pkg/log"
)

var ErrNoCombats = errors.New("combat log contains no combats")

// exportCmd represents the export command.
func exportCmd() *cobra.Command {
	var (
		logPath     string
		outputPath  string
		combatIndex int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes the raw log lines of a single combat to a file",
		Long: `Writes the raw log lines of a single combat to a file, or lists the
available combats when no index is given. The resulting file is itself a
valid combat log and can be analyzed or shared on its own.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, closer, errSetup := setup(cmd.Context())
			if errSetup != nil {
				return errSetup
			}

			defer closer()

			if logPath != "" {
				conf.Analysis.CombatlogFile = logPath
			}

			if conf.Analysis.CombatlogFile == "" {
				return ErrNoCombatLog
			}

			engine, errNew := analyzer.New(conf.Analysis)
			if errNew != nil {
				return errNew
			}

			defer log.Closer(engine)

			if errUpdate := engine.Update(); errUpdate != nil {
				return errUpdate
			}

			combats := engine.Combats()
			if len(combats) == 0 {
				return ErrNoCombats
			}

			if combatIndex < 0 {
				for index, combat := range combats {
					size := uint64(combat.LogEnd - combat.LogStart) //nolint:gosec
					fmt.Fprintf(os.Stdout, "%3d  %s  (%s)\n", index, combat.Identifier(), humanize.Bytes(size))
				}

				return nil
			}

			if combatIndex >= len(combats) {
				return fmt.Errorf("%w: index %d out of range, have %d combats", ErrNoCombats, combatIndex, len(combats))
			}

			output, errCreate := os.Create(outputPath)
			if errCreate != nil {
				return fmt.Errorf("failed to create output file: %w", errCreate)
			}

			defer log.Closer(output)

			return engine.ExtractCombat(output, combats[combatIndex])
		},
	}

	cmd.Flags().StringVarP(&logPath, "log", "l", "", "combat log file, overrides analysis.combatlog_file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "combat.log", "output file")
	cmd.Flags().IntVarP(&combatIndex, "combat", "c", -1, "combat index to export, list combats when omitted")

	return cmd
}
