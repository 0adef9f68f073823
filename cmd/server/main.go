package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"voxeltrade.ai/internal/config"
	"voxeltrade.ai/internal/ground"
	"voxeltrade.ai/internal/persistence/playerdb"
	"voxeltrade.ai/internal/persistence/snapshot"
	"voxeltrade.ai/internal/player"
	"voxeltrade.ai/internal/trade"
	"voxeltrade.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "./configs/server.yaml", "server config path")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite player store")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load config: %v", err)
		}
		cfg, _ = config.Load("")
		logger.Printf("config %s not found, using defaults", *configPath)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	gr := ground.NewStore(time.Duration(cfg.GroundTTLMinutes) * time.Minute)
	roster := player.NewRoster(cfg.CarryLimit, gr)

	var store *playerdb.Store
	restored := 0
	if !*disableDB {
		store, err = playerdb.OpenSQLite(filepath.Join(cfg.DataDir, "players.db"))
		if err != nil {
			logger.Fatalf("open player store: %v", err)
		}
		defer store.Close()

		rows, err := store.LoadAll()
		if err != nil {
			logger.Fatalf("load players: %v", err)
		}
		roster.Restore(rows)
		restored = len(rows)
		logger.Printf("restored %d players", len(rows))
	}
	// With no sqlite rows the shutdown snapshot is the recovery source.
	if restored == 0 {
		if n, err := restoreRosterSnapshot(cfg.DataDir, roster, gr); err == nil {
			logger.Printf("restored %d players from snapshot", n)
		} else if !os.IsNotExist(err) {
			logger.Printf("read snapshot: %v", err)
		}
	}

	hub := ws.NewHub()
	coord := trade.NewCoordinator(trade.Config{
		EscrowSlots:   cfg.EscrowSlots,
		RequestTTL:    time.Duration(cfg.RequestTTLSeconds) * time.Second,
		RequestWindow: time.Duration(cfg.RequestWindowSeconds) * time.Second,
		RequestMax:    cfg.RequestMax,
	}, roster, roster, hub, logger)

	wsServer := ws.NewServer(ws.ServerConfig{
		EscrowSlots:     cfg.EscrowSlots,
		StarterItems:    cfg.StarterItems,
		DisconnectGrace: time.Duration(cfg.DisconnectGraceSeconds) * time.Second,
	}, coord, roster, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsServer.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	stopMaint := make(chan struct{})
	maintDone := make(chan struct{})
	go func() {
		defer close(maintDone)
		maintenanceLoop(cfg, roster, gr, store, logger, stopMaint)
	}()

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Printf("shutting down")

	close(stopMaint)
	<-maintDone
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)

	// Final flush: sqlite rows plus a compressed roster snapshot.
	if store != nil {
		store.SaveAll(roster.Export())
	}
	if err := writeRosterSnapshot(cfg.DataDir, roster, gr); err != nil {
		logger.Printf("write snapshot: %v", err)
	}
}

// maintenanceLoop drives the periodic player saves and ground cleanup.
func maintenanceLoop(cfg config.Config, roster *player.Roster, gr *ground.Store, store *playerdb.Store, logger *log.Logger, stop <-chan struct{}) {
	saveEvery := time.Duration(cfg.SaveEverySeconds) * time.Second
	ticker := time.NewTicker(saveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if store != nil {
				store.SaveAll(roster.Export())
			}
			if expired := gr.CleanupExpired(time.Now()); len(expired) > 0 {
				logger.Printf("expired %d ground stacks", len(expired))
			}
		}
	}
}

func restoreRosterSnapshot(dataDir string, roster *player.Roster, gr *ground.Store) (int, error) {
	snap, err := snapshot.Read(filepath.Join(dataDir, "roster.snap.zst"))
	if err != nil {
		return 0, err
	}
	rows := make([]player.Row, 0, len(snap.Players))
	for _, p := range snap.Players {
		rows = append(rows, player.Row{ID: p.ID, Name: p.Name, Pos: p.Pos, Inventory: p.Inventory})
	}
	roster.Restore(rows)

	items := make([]ground.Item, 0, len(snap.Drops))
	for _, d := range snap.Drops {
		items = append(items, ground.Item{
			ID:        d.ID,
			Pos:       d.Pos,
			Item:      d.Item,
			Count:     d.Count,
			Meta:      d.Meta,
			ExpiresAt: time.Unix(d.ExpiresAt, 0),
		})
	}
	gr.Restore(items)
	return len(rows), nil
}

func writeRosterSnapshot(dataDir string, roster *player.Roster, gr *ground.Store) error {
	snap := snapshot.RosterV1{
		Header: snapshot.Header{Version: 1, SavedAt: time.Now().Unix()},
	}
	for _, row := range roster.Export() {
		snap.Players = append(snap.Players, snapshot.PlayerV1{
			ID:        row.ID,
			Name:      row.Name,
			Pos:       row.Pos,
			Inventory: row.Inventory,
		})
	}
	for _, d := range gr.Export() {
		snap.Drops = append(snap.Drops, snapshot.DropV1{
			ID:        d.ID,
			Pos:       d.Pos,
			Item:      d.Item,
			Count:     d.Count,
			Meta:      d.Meta,
			ExpiresAt: d.ExpiresAt.Unix(),
		})
	}
	return snapshot.Write(filepath.Join(dataDir, "roster.snap.zst"), snap)
}
