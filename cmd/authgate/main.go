package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "authgate",
	Short:         "authgate - bearer token admission gate",
	Long:          `An HTTP gate that admits requests carrying a valid HS256 bearer token, with a kill switch, bypass paths and observability.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
