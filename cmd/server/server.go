package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gleipnir/internal/common"
	"gleipnir/internal/config"
	"gleipnir/internal/engine"
	"gleipnir/internal/intake"
	"gleipnir/internal/net"
	"gleipnir/internal/sink"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

func main() {
	configFile := flag.String("config-file", "", "Path to the YAML config, defaults to $CONFIG_FILE")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	config.SetupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// run wires intake, engine, sink and the TCP server. A signal stops the
// server and sends a terminate record through the intake; the engine and the
// sink then wind down on their own.
func run(ctx context.Context, cfg *config.AppConfig) error {
	queue := intake.New(cfg.ForIntake())
	events := sink.New(cfg.ForSink())
	eng := engine.New(queue, events, cfg.ForEngine())
	srv := net.New(cfg.Server.Address, cfg.Server.Port, cfg.Server.Workers, queue)

	handlers := []sink.Handler{sink.NewStats(cfg.Sink.Detail)}
	if len(cfg.Kafka.Brokers) > 0 {
		handlers = append(handlers, sink.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing events")
	}

	if err := srv.Listen(ctx); err != nil {
		return err
	}

	// The pipeline outlives ctx: it stops on the terminate record.
	var t tomb.Tomb
	t.Go(func() error {
		return eng.Run(t.Context(nil))
	})
	t.Go(func() error {
		return events.Run(t.Context(nil), handlers...)
	})
	t.Go(func() error {
		err := srv.Serve(t.Context(ctx))
		terminate := common.NewBuilder(0).Terminate()
		if submitErr := queue.Submit(terminate.Bytes(), nil); submitErr != nil && !errors.Is(submitErr, intake.ErrClosed) {
			log.Error().Err(submitErr).Msg("unable to terminate intake")
			t.Kill(submitErr)
		}
		return err
	})

	return t.Wait()
}
