package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/drippler/drippler/internal/config"
	"github.com/spf13/cobra"
)

var (
	envFile   string
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "drippler",
	Short:         "Drippler background process and client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		return config.Load(files...)
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, callCmd, statusCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, errRequestFailed) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Environment file to load (default .env when present)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Address of a running serve process (default $DRIPPLER_URL)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "Timeout for client commands")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
