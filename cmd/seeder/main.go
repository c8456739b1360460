package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"streamflix/internal/providers"
	"streamflix/internal/reporter"
	"streamflix/internal/structures"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	flag "github.com/spf13/pflag"
)

// simulatedTransport jitters upload speed and peer count around a baseline.
type simulatedTransport struct {
	speed    float64
	peers    uint32
	progress float64
}

func (s *simulatedTransport) Sample() reporter.TransportSample {
	jitter := 0.5 + rand.Float64()
	peers := s.peers
	if peers > 0 {
		peers = uint32(rand.IntN(int(peers)*2 + 1))
	}
	s.progress = min(1, s.progress+0.01)
	return reporter.TransportSample{
		UploadSpeed: s.speed * jitter,
		NumPeers:    peers,
		Progress:    s.progress,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	ledgerURL := flag.String("ledger-url", "http://localhost:8080", "ledger base URL")
	userID := flag.String("user", os.Getenv("STREAMFLIX_USER_ID"), "demo user id sent as X-User-Id")
	initData := flag.String("init-data", os.Getenv("STREAMFLIX_INIT_DATA"), "Telegram WebApp init data, overrides --user")
	contentID := flag.String("content", "demo-movie", "content id being seeded")
	title := flag.String("title", "Demo Movie", "content title")
	interval := flag.Duration("interval", reporter.DefaultInterval, "report interval")
	duration := flag.Duration("duration", time.Minute, "how long to seed, 0 runs until interrupted")
	speed := flag.Float64("speed", 512*1024, "mean upload speed in bytes per second")
	peers := flag.Uint32("peers", 3, "mean connected peers")
	logDir := flag.String("log-dir", "./logs", "log directory")
	flag.Parse()

	if *userID == "" && *initData == "" {
		return errors.New("either --user or --init-data is required")
	}
	if err := os.MkdirAll(*logDir, 0755); err != nil {
		return err
	}
	logger, err := providers.NewLogProvider(&structures.Config{
		Debug:  true,
		Logger: structures.LoggerConfig{Level: "info", Dir: *logDir},
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	client := reporter.NewLedgerClient(*ledgerURL, reporter.Credentials{UserID: *userID, InitData: *initData}, 0)
	session := reporter.NewSeedingSession(reporter.SessionConfig{
		ContentID: *contentID,
		Title:     *title,
		Interval:  *interval,
	}, &simulatedTransport{speed: *speed, peers: *peers}, client, clockwork.NewRealClock(), logger)

	if um, err := client.UserMetrics(ctx); err == nil {
		logger.Infof(providers.TypeApp, "Starting balance %.2f (%s)", um.Tokens, um.SeedingRank)
		session.SetConfirmedBalance(um.Tokens)
	}

	session.OnResult(func(r reporter.Result) {
		if r.Err != nil {
			return
		}
		var earned float64
		if r.Update.TokensEarned != nil {
			earned = *r.Update.TokensEarned
		}
		logger.Infof(providers.TypePost, "Earned %.2f, balance %.2f", earned, *r.Update.TotalTokens)
	})
	if err := session.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	session.Stop()
	session.Wait()

	snap := session.Snapshot()
	logger.Infof(providers.TypeApp, "Seeding stopped: balance %.2f, sent %d, dropped %d, failed %d",
		snap.ConfirmedBalance, snap.ReportsSent, snap.ReportsDropped, snap.ReportsFailed)

	if board, err := client.Leaderboard(context.Background()); err == nil {
		for _, e := range board {
			fmt.Printf("%2d. %-24s %10.2f  %s\n", e.Position, e.DisplayName, e.Tokens, e.Rank)
		}
	}
	return nil
}
