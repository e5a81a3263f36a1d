package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wolfsblu/stoca/internal/analyzer"
	"github.com/wolfsblu/stoca/pkg/log"
)

// analyzeCmd represents the analyze command.
func analyzeCmd() *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Parses a combat log once and prints per combat statistics",
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

			for _, combat := range engine.Combats() {
				renderCombat(os.Stdout, combat)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&logPath, "log", "l", "", "combat log file, overrides analysis.combatlog_file")

	return cmd
}
