package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the farming cycles in the database.",
	Long:  "Prints per-village totals of the farming cycles in the database and, with --cycles, the most recent cycles.",
	RunE: func(cmd *cobra.Command, args []string) error {
		recent, _ := cmd.Flags().GetInt("cycles")
		home, _ := cmd.Flags().GetString("village")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		stats, err := db.GetStats(ctx)
		if err != nil {
			return err
		}
		cached, err := db.CacheSize(ctx)
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Village", "Cycles", "Attacked", "Scouted", "Skipped", "Vetoed", "Failed"}),
		)
		var total [6]int
		for _, s := range stats {
			_ = table.Append([]string{s.Home, strconv.Itoa(s.Cycles), strconv.Itoa(s.Attacked), strconv.Itoa(s.Scouted), strconv.Itoa(s.Skipped), strconv.Itoa(s.Vetoed), failed(s.Failed)})
			for i, n := range []int{s.Cycles, s.Attacked, s.Scouted, s.Skipped, s.Vetoed, s.Failed} {
				total[i] += n
			}
		}
		_ = table.Append([]string{"TOTAL", strconv.Itoa(total[0]), strconv.Itoa(total[1]), strconv.Itoa(total[2]), strconv.Itoa(total[3]), strconv.Itoa(total[4]), failed(total[5])})
		_ = table.Render()
		fmt.Printf("Cached targets: %d\n", cached)

		if recent <= 0 {
			return nil
		}
		cycles, err := db.ListCycles(ctx, home, recent)
		if err != nil {
			return err
		}
		ct := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Village", "Started", "Took", "Attacked", "Scouted", "Blind", "Reason"}),
		)
		for _, c := range cycles {
			reason := c.Reason
			if c.Aborted {
				reason = color.RedString(reason)
			}
			_ = ct.Append([]string{c.Home, c.Started.Format("01-02 15:04:05"), c.Finished.Sub(c.Started).String(), strconv.Itoa(c.Attacked), strconv.Itoa(c.Scouted), strconv.Itoa(c.Blind), reason})
		}
		_ = ct.Render()
		return nil
	},
}

func failed(n int) string {
	if n > 0 {
		return color.RedString(strconv.Itoa(n))
	}
	return strconv.Itoa(n)
}

func init() {
	statsCmd.Flags().Int("cycles", 0, "Also list this many recent cycles")
	statsCmd.Flags().String("village", "", "Limit the recent cycles to one home village")
	rootCmd.AddCommand(statsCmd)
}
