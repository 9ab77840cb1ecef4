package cli

import (
	"fmt"
	"os"

	"github.com/andywolf/codeloop/internal/config"
	"github.com/andywolf/codeloop/internal/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "codeloop",
	Short: "codeloop - iterate with a language model until generated code does the job",
	Long: `codeloop asks a language model to write a program for a project description,
runs it, asks the model to judge the output, and repeats until the model
reports that the project is satisfied. After each PASS you can review the
result and send further feedback, which starts a new round.

Every code attempt and its output is kept in a transcript named
{runId}_fdbk{round}_iter{iteration}.

Example:
  codeloop run "write a script that prints the first 10 primes"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set version for --version flag
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .codeloop.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Loaded environment from .env")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".codeloop")
	}

	if err := config.BindEnv(viper.GetViper(), "CODELOOP"); err != nil {
		fmt.Fprintln(os.Stderr, "Error binding environment:", err)
		os.Exit(1)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		os.Exit(1)
	}
}
