package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize docintake configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure providers, the corpus and storage locations, and writes the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
