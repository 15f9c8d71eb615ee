package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridcourier/app"
	"github.com/kilianp07/gridcourier/infra/logger"
)

var (
	orderX      int
	orderY      int
	orderWeight float64
	orderID     string

	simOrders   int
	simCouriers int
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Create one order against the saved state and print the match",
	RunE:  dispatchOrder,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print engine statistics for the saved state",
	RunE:  printStats,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate random couriers and orders against the saved state",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simOrders, "orders", 100, "orders to generate")
	simulateCmd.Flags().IntVar(&simCouriers, "couriers", 10, "couriers to generate")
	dispatchCmd.Flags().IntVar(&orderX, "x", 0, "pickup column")
	dispatchCmd.Flags().IntVar(&orderY, "y", 0, "pickup row")
	dispatchCmd.Flags().Float64Var(&orderWeight, "weight", 1, "parcel weight in kg")
	dispatchCmd.Flags().StringVar(&orderID, "id", "", "order id (generated when empty)")
	rootCmd.AddCommand(dispatchCmd, statsCmd, simulateCmd)
}

func withService(fn func(*app.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("cli").Errorf("service close: %v", err)
		}
	}()
	return fn(svc)
}

func dispatchOrder(cmd *cobra.Command, args []string) error {
	return withService(func(svc *app.Service) error {
		order, res, err := svc.CreateOrder(orderID, orderX, orderY, orderWeight)
		if err != nil {
			return err
		}
		return writeJSON(cmd, map[string]any{"order": order, "result": res})
	})
}

func printStats(cmd *cobra.Command, args []string) error {
	return withService(func(svc *app.Service) error {
		return writeJSON(cmd, svc.Stats())
	})
}

func runSimulate(cmd *cobra.Command, args []string) error {
	return withService(func(svc *app.Service) error {
		st, err := svc.Simulate(app.SimulationRequest{Orders: simOrders, Couriers: simCouriers})
		if err != nil {
			return err
		}
		return writeJSON(cmd, st)
	})
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
