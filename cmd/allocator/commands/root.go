package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFile    string
	tuningFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "allocator",
	Short: "Aegis Allocator - tiered portfolio allocation engine",
	Long: `Aegis Allocator Unified CLI

Produces an asset allocation plan from a market snapshot, capital and a
risk tolerance (1-10). Tiers are tried in order:
  remote quantitative engine → local Monte Carlo + annealing → LLM reasoning

Usage:
  go run ./cmd/allocator [command]

Examples:
  go run ./cmd/allocator serve
  go run ./cmd/allocator allocate --capital 10000 --risk 5 --snapshot snapshot.json
  go run ./cmd/allocator simulate --snapshot snapshot.json --runs 5000`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("load env file %s: %w", envFile, err)
			}
		}
		if verbose {
			_ = os.Setenv("LOG_LEVEL", "debug")
			_ = os.Setenv("LOG_FORMAT", "console")
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load before config (default is .env)")
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "YAML tuning file (overrides TUNING_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to the console")
}
