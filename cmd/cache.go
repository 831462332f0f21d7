package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tribalfarm/tfarm/internal/utils"
	"github.com/tribalfarm/tfarm/pkg/cache"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and edit the attack cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.List(context.Background(), prefix)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No cached targets.")
			return nil
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Target", "Last attack", "Safe", "Scouted", "Profile"}),
		)
		for _, k := range keys {
			e := entries[k]
			_ = table.Append([]string{k, formatUnix(e.LastAttack), strconv.FormatBool(e.Safe), strconv.FormatBool(e.Scouted), profile(e)})
		}
		_ = table.Render()
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <target>",
	Short: "Print one cache entry as JSON",
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

		e, err := db.Get(context.Background(), args[0])
		if errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("target %s is not cached", args[0])
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(e)
	},
}

var cacheSetCmd = &cobra.Command{
	Use:   "set <target>",
	Short: "Create or change a cache entry",
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

		ctx := context.Background()
		e, err := db.Get(ctx, args[0])
		if err != nil && !errors.Is(err, cache.ErrNotFound) && !errors.Is(err, cache.ErrCorrupt) {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("safe") {
			e.Safe, _ = flags.GetBool("safe")
		}
		if flags.Changed("scouted") {
			e.Scouted, _ = flags.GetBool("scouted")
		}
		if flags.Changed("high") {
			e.HighProfile, _ = flags.GetBool("high")
		}
		if flags.Changed("low") {
			e.LowProfile, _ = flags.GetBool("low")
		}
		if flags.Changed("last-attack") {
			e.LastAttack, _ = flags.GetInt64("last-attack")
		}
		if err := db.Put(ctx, args[0], e); err != nil {
			return err
		}
		utils.Log.Infof("Cache entry for %s saved", args[0])
		return nil
	},
}

var cacheImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import cache/attacks/*.json files written by earlier bot versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Storage.LegacyCache
		}
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("legacy cache directory: %w", err)
		}
		legacy, err := cache.OpenDir(dir)
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		entries, err := legacy.List(ctx, "")
		if err != nil {
			return err
		}
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		imported := 0
		for id, e := range entries {
			if !overwrite {
				if _, err := db.Get(ctx, id); err == nil {
					continue
				}
			}
			if err := db.Put(ctx, id, e); err != nil {
				return fmt.Errorf("importing %s: %w", id, err)
			}
			imported++
		}
		utils.Log.Infof("Imported %d of %d legacy cache entries from %s", imported, len(entries), dir)
		return nil
	},
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

func profile(e cache.Entry) string {
	switch {
	case e.HighProfile:
		return "high"
	case e.LowProfile:
		return "low"
	}
	return "default"
}

func init() {
	cacheListCmd.Flags().String("prefix", "", "Only list targets whose id starts with this prefix")

	cacheSetCmd.Flags().Bool("safe", false, "Mark the target safe")
	cacheSetCmd.Flags().Bool("scouted", false, "Mark the target scouted")
	cacheSetCmd.Flags().Bool("high", false, "High profile (short cooldown)")
	cacheSetCmd.Flags().Bool("low", false, "Low profile (long cooldown)")
	cacheSetCmd.Flags().Int64("last-attack", 0, "Unix time of the last engagement")

	cacheImportCmd.Flags().String("dir", "", "Legacy cache directory (default: storage.legacy_cache)")
	cacheImportCmd.Flags().Bool("overwrite", false, "Replace entries already in the database")

	cacheCmd.AddCommand(cacheListCmd, cacheShowCmd, cacheSetCmd, cacheImportCmd)
	rootCmd.AddCommand(cacheCmd)
}
