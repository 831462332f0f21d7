package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tribalfarm/tfarm/internal/utils"
	"github.com/tribalfarm/tfarm/pkg/reports"
)

// reportsCmd represents the reports command
var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Record and read scout and battle reports",
}

var reportsAddCmd = &cobra.Command{
	Use:   "add <target>",
	Short: "Record a report for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		defenders, _ := cmd.Flags().GetString("defenders")
		loot, _ := cmd.Flags().GetStringToString("loot")
		at, _ := cmd.Flags().GetString("at")

		d, err := reports.ParseDefenders(defenders)
		if err != nil {
			return err
		}
		r := reports.Report{TargetID: args[0], Kind: reports.Kind(kind), Defenders: d, When: time.Now(), Loot: map[string]int{}}
		if at != "" {
			when, err := time.ParseInLocation("2006-01-02 15:04:05", at, time.Local)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			r.When = when
		}
		for res, v := range loot {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("--loot %s: %w", res, err)
			}
			r.Loot[res] = n
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.AddReport(context.Background(), r); err != nil {
			return err
		}
		utils.Log.Infof("Recorded %s report for %s (%s, loot %d)", r.Kind, r.TargetID, r.Defenders, r.LootTotal())
		return nil
	},
}

var reportsLastCmd = &cobra.Command{
	Use:   "last <target>",
	Short: "Show the most recent report of a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		r, err := db.MostRecentReport(context.Background(), args[0])
		if err != nil {
			return err
		}
		if r == nil {
			fmt.Printf("No reports for %s.\n", args[0])
			return nil
		}
		status := r.Status()
		c := color.New(color.FgYellow)
		switch status {
		case reports.StatusSafe:
			c = color.New(color.FgGreen)
		case reports.StatusUnsafe:
			c = color.New(color.FgRed)
		}
		fmt.Printf("%s report for %s at %s\n", r.Kind, r.TargetID, r.When.Format("2006-01-02 15:04:05"))
		fmt.Printf("  defenders: %s\n", c.Sprint(r.Defenders))
		fmt.Printf("  loot left: %d %v\n", r.LootTotal(), r.Loot)
		return nil
	},
}

func init() {
	reportsAddCmd.Flags().String("kind", string(reports.KindScout), "Report kind: scout or attack")
	reportsAddCmd.Flags().String("defenders", "unknown", "Defenders seen: none, present or unknown")
	reportsAddCmd.Flags().StringToString("loot", nil, "Resources left behind, e.g. wood=100,stone=80,iron=20")
	reportsAddCmd.Flags().String("at", "", "Report time, \"2006-01-02 15:04:05\" (default now)")

	reportsCmd.AddCommand(reportsAddCmd, reportsLastCmd)
	rootCmd.AddCommand(reportsCmd)
}
