package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/tribalfarm/tfarm/pkg/config"
	"github.com/tribalfarm/tfarm/pkg/engine"
	"github.com/tribalfarm/tfarm/pkg/storage"
	"github.com/tribalfarm/tfarm/pkg/transport/game"
)

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

func openDB(cfg *config.Config) (*storage.DB, error) {
	db, err := storage.Open(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Storage.Database, err)
	}
	if cfg.Farms.PriorityLoot > 0 {
		db.PriorityLoot = cfg.Farms.PriorityLoot
	}
	return db, nil
}

func newGameClient(cfg *config.Config) (*game.Client, error) {
	if cfg.Server.Endpoint == "" {
		return nil, fmt.Errorf("server.endpoint is not set in the config")
	}
	if cfg.Server.Cookie == "" {
		return nil, fmt.Errorf("server.cookie is not set in the config")
	}
	return game.New(game.Config{
		Endpoint:  cfg.Server.Endpoint,
		Cookie:    cfg.Server.Cookie,
		UserAgent: cfg.Bot.UserAgent,
		Proxy:     cfg.Bot.Proxy,
		Delay:     cfg.RequestDelay(),
		RetryMax:  cfg.Bot.RetryMax,
	})
}

// cycleLog stores orchestrator outcomes in the database.
type cycleLog struct {
	db *storage.DB
}

func (l cycleLog) LogCycle(ctx context.Context, home string, o engine.Outcome) error {
	return l.db.LogCycle(ctx, storage.Cycle{
		Home:     home,
		Started:  o.Started,
		Finished: o.Finished,
		Attacked: o.Attacked,
		Scouted:  o.Scouted,
		Skipped:  o.Skipped,
		Vetoed:   o.Vetoed,
		Failed:   o.Failed,
		Blind:    o.Blind,
		Aborted:  o.Aborted,
		Reason:   o.Reason,
	})
}
