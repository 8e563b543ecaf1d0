package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"jubilee/bot"
	"jubilee/dal"
	"jubilee/discord"
	"jubilee/jobs"
	"jubilee/overview"
	"jubilee/pipeline"
	"jubilee/stats"
)

var (
	botToken = flag.String(
		"token",
		"",
		"Bot access token. Overrides BOT_TOKEN.",
	)
	guildID = flag.String(
		"guild",
		"",
		"Test guild ID. If not set, slash commands will be registered globally.",
	)
	dbPath = flag.String(
		"dbPath",
		"jubilee.db",
		"SQLite database file path.",
	)
	shards = flag.Int(
		"shards",
		1,
		"Number of gateway shards to run.",
	)
	debug = flag.Bool(
		"debug",
		false,
		"Enable debug logging with a console writer.",
	)
)

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if *debug {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}

func init() {
	godotenv.Load()
	flag.Parse()

	if *botToken == "" {
		*botToken = os.Getenv("BOT_TOKEN")
	}
	if *botToken == "" {
		fmt.Println("-token or BOT_TOKEN must be provided.")
		fmt.Println()
		flag.Usage()
		os.Exit(1)
	}
}

func main() {
	log := newLogger()

	db, err := dal.InitDB(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init database")
	}
	store := dal.NewStore(db)
	log.Info().Str("path", *dbPath).Msg("database ready")

	sessions, err := bot.Connect(*botToken, *shards, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to discord")
	}

	gateway := discord.NewGateway(sessions, log)
	tracker := stats.NewTracker(gateway, log)
	reconciler := overview.New(store, gateway, log)
	orchestrator := pipeline.NewOrchestrator(store, gateway, log)
	hourly := pipeline.New(store, orchestrator, reconciler, log)

	jubilee, err := bot.New(sessions, *guildID, store, reconciler, tracker, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up bot")
	}
	defer jubilee.Shutdown(*guildID)

	runner := jobs.NewRunner(store, log)
	register := func(job jobs.Job) {
		if err := runner.Register(job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name).Msg("failed to register job")
		}
	}
	register(jobs.Job{
		Name:        "birthdays",
		Spec:        "0 * * * *",
		MaxAttempts: 5,
		Handler:     hourly.RunHourly,
	})
	register(jobs.Job{
		Name:        "stats",
		Spec:        "30 * * * *",
		MaxAttempts: 3,
		Handler: func(ctx context.Context, _ time.Time) error {
			if err := tracker.Refresh(); err != nil {
				return jobs.Retryable(err)
			}
			return nil
		},
	})
	runner.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	runner.Stop(shutdownCtx)
}
