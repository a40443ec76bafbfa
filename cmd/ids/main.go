package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/technosupport/falcon/internal/config"
	"github.com/technosupport/falcon/internal/detect"
	"github.com/technosupport/falcon/internal/pipeline"
	"github.com/technosupport/falcon/internal/transport"
)

func main() {
	configPath := flag.String("config", "config/ids.yaml", "Agent config file")
	flag.Parse()

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] Agent: %v", err)
	}
	log.Printf("[INFO] Agent: camera %s starting (%dx%d @ %d fps)",
		cfg.Camera.ID, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)

	device, err := pipeline.OpenDevice(cfg.Camera.ID, cfg.Camera.Device,
		cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	if err != nil {
		log.Fatalf("[ERROR] Agent: %v", err)
	}
	defer device.Close()

	detector := detect.NewHeuristicDetector(cfg.Detect.ModelPath)

	hsv, err := config.LoadHSV(cfg.Detect.HSVPath)
	if err != nil {
		log.Fatalf("[ERROR] Agent: %v", err)
	}

	eventAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.EventPort)
	videoAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.VideoPort)

	client := transport.NewClient(eventAddr)
	video, err := transport.NewVideoSender(videoAddr, cfg.Stream.Quality, cfg.Stream.MaxDatagram)
	if err != nil {
		log.Fatalf("[ERROR] Agent: %v", err)
	}
	defer video.Close()

	p := pipeline.New(cfg, device, detector, hsv, client, video)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go config.WatchHSV(ctx, cfg.Detect.HSVPath, p.UpdateHSV)

	incoming := make(chan transport.Message, 16)
	go client.Run(ctx, incoming)
	go p.Run(ctx, incoming)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("[INFO] Agent: shutting down")
	cancel()
}
