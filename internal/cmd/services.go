package main

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/subathon-tools/subtimer/internal/api"
	"github.com/subathon-tools/subtimer/internal/bridge"
	"github.com/subathon-tools/subtimer/internal/gateway"
	"github.com/subathon-tools/subtimer/internal/persist"
	"github.com/subathon-tools/subtimer/internal/subs"
	"github.com/subathon-tools/subtimer/internal/timer"
	"github.com/subathon-tools/subtimer/internal/twitch"
)

type Services struct {
	Engine     *timer.Engine
	Hub        *gateway.Hub
	Translator *subs.Translator
	Store      persist.Store
	Saver      *persist.Saver
	API        *api.Handler
	Twitch     *twitch.Client
	Bridge     *bridge.Publisher
}

func setupServices(cfg *Config) (*Services, error) {
	clk := clockwork.NewRealClock()

	// Engine first; the hub's attach snapshot and the saver both read it.
	engine := timer.NewEngine(clk)

	hub := gateway.NewHub(gateway.DefaultConnectionConfig(), func() any {
		st := engine.GetState()
		return timer.StateEvent{Type: timer.EventTimerUpdate, TimeRemaining: st.TimeRemaining, IsActive: st.IsActive}
	})

	sinks := []timer.Broadcaster{hub}
	var publisher *bridge.Publisher
	if cfg.NATS.URL != "" {
		p, err := bridge.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			// The bridge is an optional mirror; the service runs without it.
			log.Warn().Err(err).Msg("nats bridge unavailable, continuing without it")
		} else {
			publisher = p
			sinks = append(sinks, p)
		}
	}
	broadcaster := bridge.Multi(sinks...)
	engine.SetBroadcaster(broadcaster)

	store, err := persist.OpenBolt(cfg.Timer.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	saver := persist.NewSaver(store, func() persist.Snapshot {
		st := engine.GetState()
		return persist.Snapshot{
			TimeRemaining: st.TimeRemaining,
			IsActive:      st.IsActive,
			Settings:      st.Settings,
		}
	}, clk, time.Duration(cfg.Timer.SaveIntervalSec)*time.Second)
	engine.SetSaveHook(saver.Trigger)

	translator := subs.NewTranslator(engine, broadcaster)

	var chat *twitch.Client
	if cfg.Twitch.Enabled && cfg.Twitch.Channel != "" {
		chat = twitch.NewClient(twitch.Config{
			Channel: cfg.Twitch.Channel,
			Nick:    cfg.Twitch.Nick,
			Token:   cfg.Twitch.Token,
		}, func(ev subs.Event) {
			translator.Apply(ev)
		})
	}

	return &Services{
		Engine:     engine,
		Hub:        hub,
		Translator: translator,
		Store:      store,
		Saver:      saver,
		API:        api.NewHandler(engine, translator, hub.Stats),
		Twitch:     chat,
		Bridge:     publisher,
	}, nil
}
