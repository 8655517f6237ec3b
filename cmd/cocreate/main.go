package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor  bool
	userFlag string
)

var rootCmd = &cobra.Command{
	Use:           "cocreate",
	Short:         "Draft LinkedIn posts in your own voice",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "act as this user (default: client.user_id, then $USER)")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(generateCmd, refineCmd)
	rootCmd.AddCommand(voiceCmd, postsCmd, docsCmd, guideCmd, linksCmd, generationsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// actingUser resolves who CLI requests are made for.
func actingUser(configured string) (string, error) {
	for _, u := range []string{userFlag, configured, os.Getenv("USER")} {
		if u != "" {
			return u, nil
		}
	}
	return "", fmt.Errorf("no user: pass --user or run `cocreate config set client.user_id <id>`")
}
