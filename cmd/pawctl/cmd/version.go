package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of pawctl.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if GetOutput() == "json" {
			data, err := json.MarshalIndent(config.GetBuildInfo(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), config.VersionString("pawctl"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
