package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridcourier/core/grid"
	infrastore "github.com/kilianp07/gridcourier/infra/store"
)

var (
	mapRows int
	mapCols int
	mapSeed int64
	mapSave bool
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Inspect or generate the city grid",
}

var mapShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the saved map",
	RunE:  runMapShow,
}

var mapGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a map from the grid settings and render it",
	RunE:  runMapGenerate,
}

func init() {
	for _, c := range []*cobra.Command{mapShowCmd, mapGenerateCmd} {
		c.Flags().IntVar(&mapRows, "rows", 30, "rows to render")
		c.Flags().IntVar(&mapCols, "cols", 60, "columns to render")
	}
	mapGenerateCmd.Flags().Int64Var(&mapSeed, "seed", 0, "random seed (overrides grid.seed)")
	mapGenerateCmd.Flags().BoolVar(&mapSave, "save", false, "replace the saved map")
	mapCmd.AddCommand(mapShowCmd, mapGenerateCmd)
	rootCmd.AddCommand(mapCmd)
}

func runMapShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := infrastore.New(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	m, err := st.LoadMap(cmd.Context())
	if err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return printMap(cmd, m)
}

func runMapGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	seed := cfg.Grid.Seed
	if mapSeed != 0 {
		seed = mapSeed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := grid.NewGenerator(rand.New(rand.NewSource(seed)))
	m, err := gen.GenerateBest(cfg.Grid.Size, cfg.Grid.Wall(), cfg.Grid.Attempts)
	if err != nil {
		return err
	}
	if mapSave {
		st, err := infrastore.New(cfg.Store.Backend, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.SaveMap(ctx, m); err != nil {
			return fmt.Errorf("save map: %w", err)
		}
	}
	return printMap(cmd, m)
}

func printMap(cmd *cobra.Command, m *grid.Map) error {
	out := cmd.OutOrStdout()
	total := m.Size() * m.Size()
	walkable := m.CountWalkable()
	if _, err := fmt.Fprintf(out, "size %dx%d, walkable %d (%.1f%%)\n", m.Size(), m.Size(), walkable, 100*float64(walkable)/float64(total)); err != nil {
		return err
	}
	return m.Render(out, mapRows, mapCols)
}
