// cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resqd/resq/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the resq version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("resq %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
