package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/tickstream/pkg/api"
	"github.com/cbodonnell/tickstream/pkg/config"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/network"
	"github.com/cbodonnell/tickstream/pkg/objects"
	"github.com/cbodonnell/tickstream/pkg/queue"
	"github.com/cbodonnell/tickstream/pkg/repositories"
	"github.com/cbodonnell/tickstream/pkg/scope"
	"github.com/cbodonnell/tickstream/pkg/session"
	"github.com/cbodonnell/tickstream/pkg/version"
	"github.com/cbodonnell/tickstream/pkg/workers"
)

type demoWorld interface {
	Register(r *scope.Registry, owner uint32) error
	Update(dt float64)
}

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	udpPort := flag.Int("udp-port", cfg.UDPPort, "UDP port to listen on")
	wsPort := flag.Int("ws-port", cfg.WSPort, "WebSocket port to listen on, 0 to disable")
	apiPort := flag.Int("api-port", cfg.APIPort, "Debug API port to listen on, 0 to disable")
	tickInterval := flag.Duration("tick", cfg.TickInterval, "Interval between frames")
	databaseURL := flag.String("database-url", cfg.DatabaseURL, "sqlite:// or postgres:// URL to record frames to")
	worldName := flag.String("world", "orbits", "Demo world to replicate: orbits or arena")
	bodies := flag.Int("bodies", 8, "Number of bodies to replicate")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting server version %s", version.Get())
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

	var world demoWorld
	switch *worldName {
	case "orbits":
		world = objects.NewOrbits(codec, *bodies, 100, 10)
	case "arena":
		world = objects.NewArena(codec, *bodies, 512, 120, rand.New(rand.NewSource(time.Now().UnixNano())))
	default:
		panic(fmt.Sprintf("Unknown world %s", *worldName))
	}

	registry := scope.NewRegistry()
	if err := world.Register(registry, 0); err != nil {
		panic(fmt.Sprintf("Failed to register world: %v", err))
	}

	peerManager := network.NewPeerManager()
	inboundQueue := queue.NewInMemoryQueue(10000)
	networkManager := network.NewNetworkManager(network.NewNetworkManagerOptions{
		PeerManager:  peerManager,
		MessageQueue: inboundQueue,
		UDPPort:      *udpPort,
		WSPort:       *wsPort,
		IdleTimeout:  cfg.IdleTimeout,
	})

	var repository repositories.Repository
	var recordFrameChan chan workers.RecordFrameRequest
	if *databaseURL != "" {
		repository, err = repositories.NewRepository(ctx, *databaseURL)
		if err != nil {
			panic(fmt.Sprintf("Failed to create repository: %v", err))
		}
		defer repository.Close(context.Background())

		recordFrameChannelSize := 100
		recordFrameChan = make(chan workers.RecordFrameRequest, recordFrameChannelSize)
		recordFrameWorker := workers.NewRecordFrameWorker(workers.NewRecordFrameWorkerOptions{
			Repository:      repository,
			RecordFrameChan: recordFrameChan,
		})
		go func() {
			if err := recordFrameWorker.Start(ctx); err != nil {
				log.Error("Frame recorder stopped: %v", err)
			}
		}()
	}

	server := session.NewServer(session.NewServerOptions{
		Registry:            registry,
		Transport:           networkManager,
		InboundQueue:        inboundQueue,
		TickInterval:        *tickInterval,
		HistorySize:         cfg.HistorySize,
		SkipIdenticalScopes: cfg.SkipIdenticalScopes,
		RecordFrameChan:     recordFrameChan,
		Update:              world.Update,
	})
	peerManager.OnDisconnect(server.HandleDisconnect)

	if *apiPort != 0 {
		apiServer := api.NewAPIServer(api.NewAPIServerOptions{
			Port:       *apiPort,
			Peers:      peerManager,
			Acks:       server,
			Repository: repository,
		})
		go apiServer.Start()
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := apiServer.Stop(shutdownCtx); err != nil {
				log.Error("Failed to stop API server: %v", err)
			}
		}()
	}

	networkManager.Start(ctx)

	log.Info("Replicating %d bodies in %s every %s", *bodies, *worldName, *tickInterval)
	if err := server.Start(ctx); err != nil {
		panic(fmt.Sprintf("Failed to start session server: %v", err))
	}
	log.Info("Server stopped")
}
