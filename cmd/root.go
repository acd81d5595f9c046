package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fieldprep",
	Short: "A CLI tool for preparing field-collected image sets",
	Long: `Fieldprep takes a folder of images collected in the field, renames them
into a consistent chronological scheme, detects near-duplicate shots,
and compresses the set down to a byte budget. Site-aware runs also
validate the upload hierarchy, cross-check site assignments and render
an interactive map of the collection.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
