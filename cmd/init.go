package cmd

import (
	"github.com/spf13/cobra"

	"github.com/miskibin/sejmofil-sub001/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize sejmofil configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose providers, the index backend and CORS origins, and writes a .sejmofil.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
