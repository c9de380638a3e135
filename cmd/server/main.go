package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-callhub/internal/api"
	"github.com/npezzotti/go-callhub/internal/config"
	"github.com/npezzotti/go-callhub/internal/database"
	"github.com/npezzotti/go-callhub/internal/media"
	"github.com/npezzotti/go-callhub/internal/server"
	"github.com/npezzotti/go-callhub/internal/sink"
	"github.com/npezzotti/go-callhub/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	mediaDir       string
	mediaURL       string
	inviteTimeout  time.Duration
	redisAddr      string
	presenceKey    string
	kafkaBrokers   stringSliceFlag
	kafkaTopic     string
	runMigrations  bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key, websocket authentication is disabled when empty")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&mediaDir, "media-dir", config.DefaultMediaDir, "directory for uploaded attachments")
	flag.StringVar(&mediaURL, "media-url", config.DefaultMediaURL, "public URL prefix for uploaded attachments")
	flag.DurationVar(&inviteTimeout, "invite-timeout", config.DefaultInviteTimeout, "how long a call invitation stays pending")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for the presence mirror, disabled when empty")
	flag.StringVar(&presenceKey, "presence-key", config.DefaultPresenceKey, "redis key holding the online user set")
	flag.Var(&kafkaBrokers, "kafka-brokers", "comma-separated list of kafka brokers for the message stream, disabled when empty")
	flag.StringVar(&kafkaTopic, "kafka-topic", config.DefaultKafkaTopic, "kafka topic for persisted chat messages")
	flag.BoolVar(&runMigrations, "migrate", false, "apply database migrations before starting")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-callhub] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.MediaDir = mediaDir
	cfg.MediaURL = mediaURL
	cfg.InviteTimeout = inviteTimeout
	cfg.RedisAddr = redisAddr
	cfg.PresenceKey = presenceKey
	cfg.KafkaBrokers = kafkaBrokers
	cfg.KafkaTopic = kafkaTopic

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config:", err)
	}

	if !cfg.AuthEnabled() {
		logger.Println("no signing key configured, websocket authentication is disabled")
	}

	dbConn, err := database.NewPgGoChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if runMigrations {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("db migrate:", err)
		}
		logger.Println("database migrations applied")
	}

	store, err := media.NewLocalStore(cfg.MediaDir, cfg.MediaURL)
	if err != nil {
		logger.Fatal("media store:", err)
	}
	logger.Printf("storing attachments in %s, served under %s", store.Dir(), cfg.MediaURL)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	opts := []server.HubOption{server.WithInviteTimeout(cfg.InviteTimeout)}

	if cfg.RedisAddr != "" {
		presence := sink.NewRedisPresence(cfg.RedisAddr, cfg.PresenceKey)
		defer presence.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := presence.Ping(pingCtx); err != nil {
			logger.Printf("redis ping: %v, presence mirror will retry on the next change", err)
		}
		cancel()

		logger.Printf("mirroring presence to redis key %q, channel %q", cfg.PresenceKey, presence.Channel())
		opts = append(opts, server.WithPresenceSink(presence))
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := sink.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()

		logger.Printf("publishing messages to kafka topic %q", cfg.KafkaTopic)
		opts = append(opts, server.WithMessageSink(publisher))
	}

	hub := server.NewHub(logger, dbConn, statsUpdater, store, opts...)

	srv := api.NewGoChatApp(mux, logger, hub, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go hub.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down hub...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("hub shutdown:", err)
	}

	logger.Println("shutdown complete")
}
