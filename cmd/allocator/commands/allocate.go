package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/internal/external/marketdata"
)

// allocateCmd represents the allocate command
var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Produce one allocation plan through the tier chain",
	Long: `Runs the tiered orchestrator once and prints the plan.

The snapshot comes from --snapshot, repeated --asset flags or MARKET_DATA_URL.
An --asset is SYMBOL:PRICE:CHANGE_PERCENT[:TYPE].

Example:
  go run ./cmd/allocator allocate --capital 10000 --risk 5 --snapshot snapshot.json
  go run ./cmd/allocator allocate --capital 10000 --risk 8 --asset SPY:500:1.2:Stock --asset BTC:61000:-3.4:Crypto
  go run ./cmd/allocator allocate --capital 5000 --risk 2 --snapshot snapshot.json --output json`,
	RunE: runAllocate,
}

var (
	allocateCapital  float64
	allocateRisk     int
	allocateSnapshot string
	allocateAssets   []string
	allocateOutput   string
)

func init() {
	rootCmd.AddCommand(allocateCmd)

	// Flags
	allocateCmd.Flags().Float64Var(&allocateCapital, "capital", 10000, "investable capital")
	allocateCmd.Flags().IntVar(&allocateRisk, "risk", 5, "risk tolerance 1 (cautious) ~ 10 (aggressive)")
	allocateCmd.Flags().StringVar(&allocateSnapshot, "snapshot", "", "market snapshot JSON file")
	allocateCmd.Flags().StringArrayVar(&allocateAssets, "asset", nil, "inline observation SYMBOL:PRICE:CHANGE[:TYPE] (repeatable)")
	allocateCmd.Flags().StringVarP(&allocateOutput, "output", "o", "table", "output format (table|json)")
}

func runAllocate(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	provider := rt.snapshotProvider(allocateSnapshot)
	if len(allocateAssets) > 0 {
		snapshot, err := parseAssets(allocateAssets)
		if err != nil {
			return err
		}
		provider = marketdata.NewStaticProvider(snapshot)
	}
	if provider == nil {
		return errors.New("no market snapshot: use --snapshot, --asset or MARKET_DATA_URL")
	}

	orchestrator, err := rt.orchestrator(provider)
	if err != nil {
		return err
	}

	outcome, err := orchestrator.Allocate(cmd.Context(), allocateCapital, allocateRisk)
	if err != nil {
		return fmt.Errorf("allocate: %w", err)
	}

	switch allocateOutput {
	case "json":
		return printJSON(cmd.OutOrStdout(), outcome)
	case "table":
		printOutcome(cmd.OutOrStdout(), outcome)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", allocateOutput)
	}
}

// parseAssets turns SYMBOL:PRICE:CHANGE[:TYPE] flags into a snapshot
func parseAssets(flags []string) (*contracts.MarketSnapshot, error) {
	snapshot := &contracts.MarketSnapshot{Assets: make([]contracts.AssetObservation, 0, len(flags))}

	for _, raw := range flags {
		parts := strings.Split(raw, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("invalid --asset %q: want SYMBOL:PRICE:CHANGE[:TYPE]", raw)
		}

		price, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --asset %q price: %w", raw, err)
		}
		change, err := strconv.ParseFloat(strings.TrimSuffix(parts[2], "%"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --asset %q change: %w", raw, err)
		}

		obs := contracts.AssetObservation{Symbol: parts[0], Price: price, ChangePercent: change}
		if len(parts) == 4 {
			obs.Type = parts[3]
		}
		snapshot.Assets = append(snapshot.Assets, obs)
	}

	return snapshot, nil
}
