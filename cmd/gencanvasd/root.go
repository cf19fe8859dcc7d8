package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gencanvasd",
	Short: "gencanvasd is the generative canvas backend",
	Long: `gencanvasd serves the node-graph canvas API: node CRUD, generation
dispatch across image and video providers, background recovery of
in-flight jobs, and the saved-asset library.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML or JSON config file")
}
