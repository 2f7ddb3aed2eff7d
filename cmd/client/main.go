package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/tickstream/pkg/ack"
	"github.com/cbodonnell/tickstream/pkg/config"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/network"
	"github.com/cbodonnell/tickstream/pkg/objects"
	"github.com/cbodonnell/tickstream/pkg/scope"
	"github.com/cbodonnell/tickstream/pkg/session"
	"github.com/cbodonnell/tickstream/pkg/version"
)

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	serverAddr := flag.String("server", cfg.ServerAddr, "Server UDP address, or a ws:// URL")
	useWS := flag.Bool("ws", false, "Connect over WebSocket")
	bodies := flag.Int("bodies", 8, "Number of bodies the server replicates")
	renderInterval := flag.Duration("render", 16*time.Millisecond, "Interval between renders")
	reportInterval := flag.Duration("report", time.Second, "Interval between position reports")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting client version %s", version.Get())
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	positionPrecision, err := cfg.Precision.Position()
	if err != nil {
		panic(err)
	}
	velocityPrecision, err := cfg.Precision.Velocity()
	if err != nil {
		panic(err)
	}
	codec := &objects.BodyCodec{
		Position:     positionPrecision,
		Velocity:     velocityPrecision,
		RotationBits: cfg.Precision.RotationBits,
	}

	registry := scope.NewRegistry()
	world := objects.NewOrbits(codec, *bodies, 0, 1)
	if err := world.Register(registry, 0); err != nil {
		panic(fmt.Sprintf("Failed to register world: %v", err))
	}

	var conn network.Client
	if *useWS {
		conn = network.NewWSClient(*serverAddr)
	} else {
		conn = network.NewUDPClient(*serverAddr)
	}
	if err := conn.Connect(ctx); err != nil {
		panic(fmt.Sprintf("Failed to connect: %v", err))
	}
	defer conn.Close()

	client := session.NewClient(session.NewClientOptions{
		Registry:           registry,
		Sender:             conn,
		HistorySize:        ack.DefaultHistorySize,
		InterpolationDelay: cfg.InterpolationDelay,
	})

	go func() {
		err := conn.Start(ctx, func(ctx context.Context, packet []byte) {
			if err := client.HandlePacket(ctx, packet); err != nil {
				log.Warn("Failed to handle packet: %v", err)
			}
		})
		if err != nil {
			log.Error("Connection failed: %v", err)
		}
		cancel()
	}()
	go func() {
		if err := client.Start(ctx, cfg.PingInterval); err != nil {
			log.Error("Failed to ping server: %v", err)
			cancel()
		}
	}()

	render := time.NewTicker(*renderInterval)
	defer render.Stop()
	report := time.NewTicker(*reportInterval)
	defer report.Stop()

	var rendered uint32
	for {
		select {
		case <-ctx.Done():
			log.Info("Client stopped")
			return
		case t := <-render.C:
			rendered = client.Render(t)
		case <-report.C:
			log.Info("Frame %d (newest %d), tick %d, rtt %s", rendered, client.LastApplied(), world.Ticks.X, client.RTT())
			for i, b := range world.Bodies {
				log.Debug("Body %d at (%.2f, %.2f, %.2f)", i+1, b.Position.X, b.Position.Y, b.Position.Z)
			}
		}
	}
}
