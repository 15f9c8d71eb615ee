package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridcourier/app"
	corestore "github.com/kilianp07/gridcourier/core/store"
	infrastore "github.com/kilianp07/gridcourier/infra/store"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List saved couriers",
	RunE:  runFleetLs,
}

var fleetResetCmd = &cobra.Command{
	Use:   "reset-counter <courier-id>",
	Short: "Reset a courier's deliveries for the day",
	Args:  cobra.ExactArgs(1),
	RunE:  runFleetReset,
}

func init() {
	fleetCmd.AddCommand(fleetLsCmd, fleetResetCmd)
	rootCmd.AddCommand(fleetCmd)
}

func runFleetLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := infrastore.New(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	couriers, err := st.LoadCouriers(cmd.Context())
	if errors.Is(err, corestore.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "no saved fleet")
		return nil
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTRANSPORT\tLOCATION\tSTATUS\tORDER\tDONE TODAY")
	for _, c := range couriers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", c.ID, c.Transport.Name, c.Location, c.Status, c.CurrentOrderID, c.CompletedToday)
	}
	return w.Flush()
}

func runFleetReset(cmd *cobra.Command, args []string) error {
	return withService(func(svc *app.Service) error {
		c, err := svc.ResetCourierCounter(args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd, c)
	})
}
