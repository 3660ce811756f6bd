package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/magnusoverli/sushe-online-sub002/internal/api"
	"github.com/magnusoverli/sushe-online-sub002/internal/config"
	"github.com/magnusoverli/sushe-online-sub002/internal/liststore"
	"github.com/magnusoverli/sushe-online-sub002/internal/mutation"
	"github.com/magnusoverli/sushe-online-sub002/internal/push"
	"github.com/magnusoverli/sushe-online-sub002/internal/snapshot"
)

// commandContext lazily builds the client engine shared by the commands:
// one API client, one list store, one snapshot tracker, the mutation
// pipeline and the push channel, all bound to a fresh socket id.
type commandContext struct {
	configFlag *string
	userFlag   *string

	cfg    *config.Config
	engine *engine
}

type engine struct {
	api      *api.Client
	store    *liststore.Store
	snaps    *snapshot.Tracker
	pipeline *mutation.Pipeline
	push     *push.Channel

	pushURL  string
	userID   string
	socketID string
}

// pushWithOnChange builds a push channel sharing this engine's state but
// firing the given hook after each reconciled change.
func (e *engine) pushWithOnChange(f func(listID string)) *push.Channel {
	return push.New(e.pushURL, e.userID, e.socketID, e.store, e.snaps,
		push.WithOnChange(f))
}

func newCommandContext(configFlag, userFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, userFlag: userFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := *c.configFlag
	explicit := path != ""
	if !explicit {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return nil, err
	}
	if *c.userFlag != "" {
		cfg.Server.UserID = *c.userFlag
	}
	c.cfg = &cfg
	return c.cfg, nil
}

func (c *commandContext) ensureEngine() (*engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Server.UserID == "" {
		return nil, errors.New("no user id: set server.user_id in the config or pass --user")
	}

	socketID := uuid.NewString()
	client := api.New(cfg.Server.APIURL, cfg.Server.UserID, socketID)
	store := liststore.New()
	snaps, err := snapshot.New(cfg.Client.SnapshotDir)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	pipeline := mutation.New(store, snaps, client,
		mutation.WithReorderDelay(time.Duration(cfg.Client.ReorderDebounceMS)*time.Millisecond),
		mutation.WithEditDelay(time.Duration(cfg.Client.EditDebounceMS)*time.Millisecond),
		mutation.WithNotifier(func(listID string, err error) {
			fmt.Fprintf(os.Stderr, "write to %s failed, local changes rolled back: %v\n", listID, err)
		}),
	)
	channel := push.New(cfg.Server.PushURL, cfg.Server.UserID, socketID, store, snaps)

	c.engine = &engine{
		api:      client,
		store:    store,
		snaps:    snaps,
		pipeline: pipeline,
		push:     channel,
		pushURL:  cfg.Server.PushURL,
		userID:   cfg.Server.UserID,
		socketID: socketID,
	}
	return c.engine, nil
}

func (c *commandContext) close() {
	if c.engine != nil {
		c.engine.push.Unsubscribe()
		_ = c.engine.snaps.Close()
	}
}

// loadList resolves ref (list id or name), fetches the list with its
// entries into the store and records the baseline snapshot.
func (e *engine) loadList(ctx context.Context, ref string) (string, error) {
	lists, err := e.api.Lists(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range lists {
		e.store.Put(l)
	}

	listID := ""
	for _, l := range lists {
		if l.ID == ref {
			listID = l.ID
			break
		}
	}
	if listID == "" {
		if l, ok := e.store.FindByName(ref, ""); ok {
			listID = l.ID
		}
	}
	if listID == "" {
		return "", fmt.Errorf("no list named or identified by %q", ref)
	}

	view, err := e.api.GetList(ctx, listID)
	if err != nil {
		return "", err
	}
	e.store.Put(view.List)
	e.store.SetItems(listID, view.Entries)
	if err := e.snaps.Save(listID, snapshot.Take(view.Entries)); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return listID, nil
}
