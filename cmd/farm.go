package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tribalfarm/tfarm/internal/utils"
	"github.com/tribalfarm/tfarm/pkg/config"
	"github.com/tribalfarm/tfarm/pkg/cooldown"
	"github.com/tribalfarm/tfarm/pkg/discovery"
	"github.com/tribalfarm/tfarm/pkg/engine"
	"github.com/tribalfarm/tfarm/pkg/journal"
	"github.com/tribalfarm/tfarm/pkg/priority"
	"github.com/tribalfarm/tfarm/pkg/safety"
	"github.com/tribalfarm/tfarm/pkg/storage"
	"github.com/tribalfarm/tfarm/pkg/transport/game"
	"github.com/tribalfarm/tfarm/pkg/troops"
	"github.com/tribalfarm/tfarm/pkg/world"
)

// farmCmd implements: tfarm farm
var farmCmd = &cobra.Command{
	Use:   "farm",
	Short: "Run the farming loop for every managed village",
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		villages, _ := cmd.Flags().GetStringSlice("village")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Farms.Farm {
			utils.Log.Info("Farming is disabled in the config (farms.farm: false)")
			return nil
		}
		if len(villages) == 0 {
			villages = cfg.ManagedVillages()
		}
		if len(villages) == 0 {
			return fmt.Errorf("no managed villages in the config")
		}

		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		client, err := newGameClient(cfg)
		if err != nil {
			return err
		}
		jw := journal.NewWriter(journalDir(cfg), "actions")
		defer jw.Close()

		var rules priority.Classifier
		if len(cfg.Farms.PriorityRules) > 0 {
			r, err := priority.NewRules(db, cfg.Farms.PriorityRules)
			if err != nil {
				return err
			}
			rules = r
		}

		gameMap := client.Map()
		var tasks []engine.Task
		for _, id := range villages {
			h, err := newHomeRunner(cfg, id, db, client, gameMap, jw, rules)
			if err != nil {
				return err
			}
			tasks = append(tasks, engine.Task{Name: "farm " + id, Run: h.run})
		}

		seed := cfg.Bot.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		driver := engine.NewDriver(seed, utils.Log, tasks...)
		sched, err := cfg.Schedule()
		if err != nil {
			return err
		}
		sched.Seed(seed)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for {
			now := time.Now()
			if sched.ShouldRun(now) {
				for _, err := range driver.RunRound(ctx) {
					if errors.Is(err, game.ErrSessionExpired) || errors.Is(err, game.ErrBotProtection) {
						return err
					}
				}
			} else {
				utils.Log.Info("Outside active hours, not farming")
			}
			if once || ctx.Err() != nil {
				return nil
			}
			wait := sched.Next(time.Now())
			utils.Log.Infof("Dead for %s, next round at %s", wait.Round(time.Second), time.Now().Add(wait).Format("15:04:05"))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
	},
}

// homeRunner is the farm task of one home village.
type homeRunner struct {
	id    string
	home  *game.Home
	world world.Provider
	pool  *troops.Pool
	orch  *engine.Orchestrator
	lock  *utils.HomeLock
	log   engine.Logger
}

func newHomeRunner(cfg *config.Config, id string, db *storage.DB, client *game.Client, provider world.Provider, jw engine.Journal, rules priority.Classifier) (*homeRunner, error) {
	log := utils.HomeLogger(id)
	ecfg, err := cfg.Engine(id)
	if err != nil {
		return nil, err
	}
	lock, err := utils.NewHomeLock(cfg.Storage.Database, id)
	if err != nil {
		return nil, err
	}

	home := client.Home(id)
	pool := troops.NewPool(home, nil, nil)
	policy := cooldown.New(cfg.Cooldown())
	classifier := priority.Chain{priority.Reports{Subsystem: db}}
	if rules != nil {
		classifier = append(classifier, rules)
	}
	orch := engine.New(engine.Deps{
		Home:       id,
		Discovery:  discovery.New(cfg.Bounds(id), discovery.WithLogger(log)),
		Classifier: classifier,
		Safety:     safety.New(cfg.Safety(), db, db, policy, log),
		Reports:    db,
		Inventory:  pool,
		Transport:  home,
		CycleLog:   cycleLog{db: db},
		Journal:    jw,
		Log:        log,
	}, ecfg)
	return &homeRunner{id: id, home: home, world: provider, pool: pool, orch: orch, lock: lock, log: log}, nil
}

func (h *homeRunner) run(ctx context.Context) error {
	locked, err := h.lock.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		h.log.Warnf("Village %s is farmed by another tfarm process, skipping", h.id)
		return nil
	}
	defer h.lock.Unlock()

	state, err := h.home.State(ctx)
	if err != nil {
		return err
	}
	snap, err := h.world.Snapshot(ctx, h.id)
	if err != nil {
		return err
	}
	if state.Points > 0 {
		snap.Home.Points = state.Points
	}
	// Troops come back between rounds; start every cycle from fresh counts.
	if err := h.pool.Refresh(ctx); err != nil {
		if errors.Is(err, game.ErrSessionExpired) || errors.Is(err, game.ErrBotProtection) {
			return err
		}
		h.log.Warnf("Could not read troops of %s: %v", h.id, err)
	}
	_, err = h.orch.RunCycle(ctx, snap, state.Conditions())
	if errors.Is(err, engine.ErrNoTroops) {
		return nil
	}
	return err
}

func journalDir(cfg *config.Config) string {
	dir := cfg.Storage.Journal
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	abs, err := utils.GetAbsDBPath(cfg.Storage.Database)
	if err != nil {
		return dir
	}
	return filepath.Join(filepath.Dir(abs), dir)
}

func init() {
	farmCmd.Flags().Bool("once", false, "Run a single round and exit")
	farmCmd.Flags().StringSlice("village", nil, "Farm only these home villages (default: all managed)")
	rootCmd.AddCommand(farmCmd)
}
