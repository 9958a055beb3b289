package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"racecurve/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	RunE: func(*cobra.Command, []string) error {
		path := cfgPath
		if path == "" {
			p, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			path = p
		}

		created, err := config.CreateExample(path)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(os.Stderr, "Config already exists at %s\n", path)
			return nil
		}
		fmt.Fprintf(os.Stderr, "Wrote example config to %s\n", path)
		fmt.Fprintln(os.Stderr, "Add your Strava API credentials from https://www.strava.com/settings/api to use fetch.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
