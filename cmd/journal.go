package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/tribalfarm/tfarm/pkg/journal"
)

// journalCmd implements: tfarm journal
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print the commands sent, from the action journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		action, _ := cmd.Flags().GetString("action")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		files, err := journal.Files(journalDir(cfg), "actions")
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("The journal is empty.")
			return nil
		}
		for _, f := range files {
			err := journal.ReadFile(f, func(line json.RawMessage) error {
				ev := gjson.ParseBytes(line)
				if target != "" && ev.Get("target").String() != target {
					return nil
				}
				if action != "" && ev.Get("action").String() != action {
					return nil
				}
				fmt.Println(string(line))
				return nil
			})
			if err != nil {
				return fmt.Errorf("reading %s: %w", f, err)
			}
		}
		return nil
	},
}

func init() {
	journalCmd.Flags().String("target", "", "Only show commands sent to this target")
	journalCmd.Flags().String("action", "", "Only show this action (attack, scout, vetoed)")
	rootCmd.AddCommand(journalCmd)
}
