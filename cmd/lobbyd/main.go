// Package main implements lobbyd, the lobby and matchmaking daemon. One
// lobbyd runs per machine; instances configured into the same fleet treat
// each other as dedicated game-server capacity.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│               lobbyd                    │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /connect /rooms /refresh /create     │
//	│    /join /quit /start /chat             │
//	│    /keep /keep_list                     │
//	│    /matchmaking /cancel                 │
//	│    /remote/*  - fleet internal          │
//	│    /health    - liveness                │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    Coordinator   - dispatch and sweep   │
//	│    Allocator     - fleet port ledger    │
//	│    ExecLauncher  - game-server procs    │
//	└─────────────────────────────────────────┘
//
// Configuration (environment):
//   - LOBBY_ADDR: listen address (default ":8070")
//   - LOBBY_HOST: this machine's fleet identity (default "127.0.0.1")
//   - LOBBY_FLEET: comma-separated peer base URLs
//   - LOBBY_FLEET_SECRET: shared secret gating /remote/*
//   - LOBBY_GAMESERVER_BIN: game-server executable to launch
//   - LOBBY_PUBLIC_URL: own base URL handed to game servers
//
// Example:
//
//	LOBBY_HOST=10.0.0.5 \
//	LOBBY_FLEET=http://10.0.0.6:8070 \
//	LOBBY_FLEET_SECRET=s3cret \
//	LOBBY_GAMESERVER_BIN=./gameagent \
//	./lobbyd
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/lobbyd/internal/fleet"
	"github.com/dreamware/lobbyd/internal/lobby"
	"github.com/dreamware/lobbyd/internal/ports"
)

func main() {
	cfg := lobby.LoadConfig()

	alloc := ports.NewAllocator(cfg.PortMin, cfg.PortMax)

	// The launcher's exit callback needs the coordinator, which needs the
	// launcher; bind it late.
	var coord *lobby.Coordinator
	var launcher lobby.Launcher
	if cfg.GameServerBin != "" {
		launcher = lobby.NewExecLauncher(cfg.GameServerBin, cfg.PublicURL, func(roomID string) {
			coord.OnGameExit(roomID)
		})
	}

	coord = lobby.NewCoordinator(cfg, alloc, launcher, fleet.NewClient(cfg.FleetSecret))

	srv := &server{coord: coord, limiter: newRateLimiter(cfg.RateLimitPerIP)}
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newMux(srv),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)

	go func() {
		log.Printf("lobbyd listening on %s (host identity %s, fleet size %d)",
			cfg.ListenAddr, cfg.Host, len(cfg.FleetHosts))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// Stop taking requests before stopping the coordinator so nothing
	// enqueues into a drained outbound queue.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
	log.Println("lobbyd stopped")
}
