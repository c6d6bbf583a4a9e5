package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-allocator/internal/api"
	"github.com/wonny/aegis-allocator/internal/api/handlers"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quantitative engine HTTP service",
	Long: `Starts the HTTP service that answers the remote engine contract with the
in-process Monte Carlo + simulated annealing engine.

Endpoints:
  GET  /              - Status line
  GET  /health        - Health check
  POST /optimize      - {capital, risk_tolerance, market_data} → AllocationPlan
  POST /api/allocate  - {capital, riskTolerance} → tiered Outcome
                        (only when --snapshot or MARKET_DATA_URL is set)

Example:
  go run ./cmd/allocator serve
  go run ./cmd/allocator serve --port 9000 --snapshot snapshot.json`,
	RunE: runServe,
}

var (
	servePort     string
	serveSnapshot string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
	serveCmd.Flags().StringVar(&serveSnapshot, "snapshot", "", "market snapshot JSON file for /api/allocate")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if servePort != "" {
		rt.cfg.Port = servePort
	}

	// 1. Engine behind POST /optimize
	optimizeHandler := handlers.NewOptimizeHandler(rt.engine(), rt.log)

	// 2. Tiered allocation, when a snapshot source exists
	var allocateHandler *handlers.AllocateHandler
	if provider := rt.snapshotProvider(serveSnapshot); provider != nil {
		orchestrator, err := rt.orchestrator(provider)
		if err != nil {
			return err
		}
		allocateHandler = handlers.NewAllocateHandler(orchestrator, rt.log)

		sched, err := rt.refreshScheduler(provider)
		if err != nil {
			return err
		}
		if sched != nil {
			sched.Start()
			defer sched.Stop()
		}
	}

	// 3. Router + server
	router := api.NewRouter(optimizeHandler, allocateHandler, rt.log)
	server := api.New(rt.cfg, rt.log, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Allocation engine listening on http://localhost:%s (tuning %s)\n",
		rt.cfg.Port, rt.tuningHash[:12])
	if allocateHandler == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "   /api/allocate disabled: no snapshot source")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "   Press Ctrl+C to stop")

	if err := server.Run(ctx); err != nil {
		return err
	}

	rt.log.Info("Server stopped")
	return nil
}
