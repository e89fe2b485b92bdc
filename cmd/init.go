package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long:  "Writes a commented example config to ~/.config/parley/config.yaml (or the --config path) for you to fill in.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(cfgFile); err != nil {
				return err
			}
			path := cfgFile
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".config", "parley", "config.yaml")
			}
			fmt.Printf("Wrote %s\n", path)
			fmt.Println("Edit it to add your API keys, or export them as environment variables.")
			return nil
		},
	}
}
