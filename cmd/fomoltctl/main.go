package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{Use: "fomoltctl", Short: "Administer and drive a fomolt3d program instance"}
	RegisterGame(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
