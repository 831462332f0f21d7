package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tribalfarm/tfarm/internal/utils"
	"github.com/tribalfarm/tfarm/pkg/cooldown"
	"github.com/tribalfarm/tfarm/pkg/discovery"
	"github.com/tribalfarm/tfarm/pkg/priority"
	"github.com/tribalfarm/tfarm/pkg/safety"
	"github.com/tribalfarm/tfarm/pkg/world"
)

// targetsCmd implements: tfarm targets <village>
var targetsCmd = &cobra.Command{
	Use:   "targets <village>",
	Short: "List the farm targets of a home village and their safety state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		home := args[0]
		dump, _ := cmd.Flags().GetString("world-file")
		showIgnored, _ := cmd.Flags().GetBool("ignored")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		var provider world.Provider
		if dump != "" {
			provider = world.FileProvider{Path: dump}
		} else {
			client, err := newGameClient(cfg)
			if err != nil {
				return err
			}
			provider = client.Map()
		}

		ctx := context.Background()
		snap, err := provider.Snapshot(ctx, home)
		if err != nil {
			return err
		}
		log := utils.HomeLogger(home)
		disc := discovery.New(cfg.Bounds(home), discovery.WithLogger(log))
		candidates := disc.Discover(snap)

		var classifier priority.Classifier = priority.Reports{Subsystem: db}
		if len(cfg.Farms.PriorityRules) > 0 {
			rules, err := priority.NewRules(db, cfg.Farms.PriorityRules)
			if err != nil {
				return err
			}
			classifier = priority.Chain{classifier, rules}
		}
		prio, err := classifier.Classify(ctx, candidates)
		if err != nil {
			log.Warnf("Could not classify targets: %v", err)
		}
		isPrio := map[string]bool{}
		for _, c := range prio {
			isPrio[c.Target.ID] = true
		}

		machine := safety.New(cfg.Safety(), db, db, cooldown.New(cfg.Cooldown()), log)
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"ID", "Name", "Coord", "Points", "Distance", "State", "Priority"}),
		)
		for _, c := range candidates {
			state, _, err := machine.Inspect(ctx, c.Target.ID)
			if err != nil {
				return err
			}
			mark := ""
			if isPrio[c.Target.ID] {
				mark = color.New(color.FgMagenta, color.Bold).Sprint("yes")
			}
			_ = table.Append([]string{
				c.Target.ID,
				c.Target.Name,
				c.Target.Location.String(),
				strconv.Itoa(c.Target.Points),
				fmt.Sprintf("%.1f", c.Distance),
				stateColor(state).Sprint(state),
				mark,
			})
		}
		_ = table.Render()

		if showIgnored {
			ignored := disc.Ignored()
			it := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader([]string{"ID", "Reason"}))
			for _, id := range ignored.IDs() {
				_ = it.Append([]string{id, string(ignored[id])})
			}
			_ = it.Render()
		}
		return nil
	},
}

func stateColor(s safety.State) *color.Color {
	switch s {
	case safety.ConfirmedSafe:
		return color.New(color.FgGreen)
	case safety.ConfirmedUnsafe:
		return color.New(color.FgRed)
	case safety.CoolingDown:
		return color.New(color.FgCyan)
	case safety.ScoutNeeded:
		return color.New(color.FgYellow)
	}
	return color.New(color.Reset)
}

func init() {
	targetsCmd.Flags().String("world-file", "", "Read the world from a JSON dump instead of the game's map files")
	targetsCmd.Flags().Bool("ignored", false, "Also list ignored villages and why")
	rootCmd.AddCommand(targetsCmd)
}
