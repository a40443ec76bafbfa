package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/falcon/internal/api"
	"github.com/technosupport/falcon/internal/config"
	"github.com/technosupport/falcon/internal/data"
	"github.com/technosupport/falcon/internal/dispatch"
	"github.com/technosupport/falcon/internal/transport"
)

const busRetries = 5

func main() {
	configPath := flag.String("config", "config/server.yaml", "Server config file")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] Server: %v", err)
	}

	// Postgres
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("[ERROR] Server: open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("[ERROR] Server: ping database: %v", err)
	}
	log.Printf("[INFO] Server: database connected")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// NATS
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		log.Fatalf("[ERROR] Server: connect NATS: %v", err)
	}
	defer nc.Close()
	log.Printf("[INFO] Server: NATS connected (%s)", nc.ConnectedUrl())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence models
	events := data.EventModel{DB: db, CropDir: cfg.Dispatch.CropDir}
	birdLog := data.BirdRiskLogModel{DB: db}
	interactions := data.InteractionLogModel{DB: db}

	areas, err := data.AreaModel{DB: db}.List(ctx)
	if err != nil || len(areas) == 0 {
		log.Printf("[ERROR] Server: area table unavailable (%v), using surveyed defaults", err)
		areas = data.DefaultAreas()
	}

	// Dispatch core
	bus := dispatch.NewBus(nc, busRetries)
	machine := dispatch.NewRiskMachine(
		dispatch.RedisSnapshotStore{RDB: rdb},
		birdLog,
		func(c dispatch.RiskChange) {
			if err := bus.Publish(dispatch.BusEvent{Kind: c.Kind, Line: c.ConsoleLine()}); err != nil {
				log.Printf("[ERROR] Server: %v", err)
			}
		},
	)
	go machine.Run(ctx)

	runway := dispatch.NewRunwayRule(machine, cfg.Dispatch.RunwayHold, cfg.Dispatch.RunwayQuiet, cfg.Dispatch.MinConfidence)
	go runway.Run(ctx)

	buffer := dispatch.NewFrameBuffer(cfg.Dispatch.FrameBuffer)
	gate := dispatch.NewGate(4096, cfg.Dispatch.GateTTL)
	mapper := dispatch.NewMapper(areas)

	ingest := dispatch.NewIngestHub(buffer, gate, mapper, events, bus, runway)
	console := dispatch.NewConsoleHub(machine, events)
	bird := dispatch.NewBirdHub(machine)
	pilot := dispatch.NewPilotHub(machine, interactions)

	// TCP endpoints
	consoleSrv := transport.NewLineServer("Console", console)
	console.SetServer(consoleSrv)

	servers := []struct {
		srv  *transport.LineServer
		addr string
	}{
		{transport.NewLineServer("Ingest", ingest), cfg.Listen.Ingest},
		{consoleSrv, cfg.Listen.Operator},
		{transport.NewLineServer("Bird", bird), cfg.Listen.Bird},
		{transport.NewLineServer("Pilot", pilot), cfg.Listen.Pilot},
	}
	for _, s := range servers {
		if err := s.srv.Listen(s.addr); err != nil {
			log.Fatalf("[ERROR] Server: %v", err)
		}
		go func(srv *transport.LineServer) {
			if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
				log.Fatalf("[ERROR] Server: %v", err)
			}
		}(s.srv)
	}

	// Bus fan-out to consoles
	sub, err := bus.Subscribe(console.HandleBus)
	if err != nil {
		log.Fatalf("[ERROR] Server: %v", err)
	}
	defer sub.Unsubscribe()

	// Video: agents in, annotated relay out
	receiver, err := transport.NewVideoReceiver(cfg.Listen.VideoIn)
	if err != nil {
		log.Fatalf("[ERROR] Server: %v", err)
	}
	sender, err := transport.NewVideoSender(cfg.Listen.VideoOut, cfg.Dispatch.CropQuality, 65000)
	if err != nil {
		log.Fatalf("[ERROR] Server: %v", err)
	}
	defer sender.Close()

	relay := dispatch.NewConsoleVideo(buffer, console, sender, cfg.Dispatch.MaxRenderGap)
	go receiver.Run(ctx, relay.HandleDatagram)

	// Ops HTTP
	httpSrv := &http.Server{
		Addr:         cfg.Listen.HTTP,
		Handler:      api.NewRouter(api.NewEventHandler(events), api.NewRiskHandler(machine)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		log.Printf("[INFO] Server: ops HTTP on %s", cfg.Listen.HTTP)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[ERROR] Server: %v", err)
		}
	}()

	log.Printf("[INFO] Server: ingest %s operator %s bird %s pilot %s video %s",
		cfg.Listen.Ingest, cfg.Listen.Operator, cfg.Listen.Bird, cfg.Listen.Pilot, cfg.Listen.VideoIn)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("[INFO] Server: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Server: HTTP shutdown: %v", err)
	}
	cancel()
}
