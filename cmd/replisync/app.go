package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/openmined/replisync/internal/config"
	"github.com/openmined/replisync/internal/replica"
	"github.com/openmined/replisync/internal/store"
	"github.com/openmined/replisync/internal/sync"
	"github.com/spf13/cobra"
)

// app bundles the loaded config, the opened stores and the sync engine.
type app struct {
	cfg         *config.Config
	local       *store.SqliteStore
	cloud       *store.SqliteStore
	engine      *sync.Engine
	collections []replica.Collection
}

func openApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	colls, err := cfg.SyncCollections()
	if err != nil {
		return nil, err
	}

	local, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		return nil, err
	}
	cloud := local
	if cfg.SeparateDatabases() {
		if cloud, err = store.Open(cfg.CloudDatabaseFile); err != nil {
			local.Close()
			return nil, err
		}
	}

	return &app{
		cfg:         cfg,
		local:       local,
		cloud:       cloud,
		engine:      sync.NewEngine(local, cloud, local),
		collections: colls,
	}, nil
}

func (a *app) Close() error {
	var errs []error
	if a.cloud != a.local {
		errs = append(errs, a.cloud.Close())
	}
	errs = append(errs, a.local.Close())
	return errors.Join(errs...)
}

// selectCollections returns the named collections, or all of them when names is empty.
func (a *app) selectCollections(names []string) ([]replica.Collection, error) {
	if len(names) == 0 {
		return a.collections, nil
	}

	var out []replica.Collection
	for _, name := range names {
		i := slices.IndexFunc(a.collections, func(c replica.Collection) bool { return c.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown collection %q", name)
		}
		out = append(out, a.collections[i])
	}
	return out, nil
}

// storeFor returns the store holding table, based on which side of a collection it belongs to.
func (a *app) storeFor(table string) (*store.SqliteStore, error) {
	for _, c := range a.collections {
		switch table {
		case c.LocalTable:
			return a.local, nil
		case c.CloudTable:
			return a.cloud, nil
		}
	}
	return nil, fmt.Errorf("table %q is not part of any configured collection", table)
}
