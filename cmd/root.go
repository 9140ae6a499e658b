/*
Package cmd contains the command line interface for funcship

Copyright © 2024 Shono <code@shono.io>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shono-io/funcship/runner"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage error")

var cfgFile string

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "funcship",
		Short: "build, push and deploy a containerized function",
		Long: `funcship builds a container image, pushes it to an ECR repository and points
the dev and prod Lambda functions at it, waiting for every update to settle.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(viper.GetString("log_level"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Unexpected command: '%s'\n", args[0])
			}
			cmd.SetOut(cmd.ErrOrStderr())
			_ = cmd.Usage()
			return errUsage
		},
	}

	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.funcship.yaml or $HOME/.funcship.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")

	if err := viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level")); err != nil {
		log.Panic().Err(err).Msg("failed to bind flags")
	}

	addStageCommands(root)
	root.AddCommand(newCredentialsCmd())

	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := exitCode(rootCmd.ExecuteContext(ctx), os.Stderr)
	stop()
	os.Exit(code)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errUsage) {
		if err != errUsage {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return exitUsage
	}

	fmt.Fprintln(stderr, "Error:", err)

	var failed *runner.CommandFailedError
	if errors.As(err, &failed) && strings.TrimSpace(failed.Output) != "" {
		fmt.Fprintln(stderr, "Command output:")
		fmt.Fprintln(stderr, strings.TrimRight(failed.Output, "\n"))
	}

	return exitError
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in the working directory, then home, with name ".funcship" (without extension).
		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".funcship")
	}

	viper.SetEnvPrefix("FUNCSHIP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		cobra.CheckErr(err)
	}
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}
