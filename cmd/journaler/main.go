// Command journaler drains the ride change feed from Kafka into the Postgres
// ride journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ridewatch/internal/config"
	"github.com/example/ridewatch/internal/ingest"
	"github.com/example/ridewatch/internal/logging"
	"github.com/example/ridewatch/internal/storage"
)

func main() {
	var metricsAddr, group string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.StringVar(&group, "group", "ridewatch-journaler", "kafka consumer group")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	if cfg.PGDSN == "" || len(cfg.KafkaBrokers) == 0 {
		logger.Error("PG_DSN and KAFKA_BROKERS are required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal, err := storage.NewPostgresJournal(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("postgres", "error", err)
		os.Exit(1)
	}
	defer journal.Close()
	if cfg.RunMigrations {
		if _, err := journal.Migrate(ctx); err != nil {
			logger.Error("migrate", "error", err)
			os.Exit(1)
		}
	}

	go serveMetrics(metricsAddr, journal, logger)

	r := ingest.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, group)
	defer r.Close()

	logger.Info("journaler consuming", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", group)
	c := ingest.NewConsumer(r, journalSink(journal), ingest.ConsumerOptions{}, logger)
	if err := c.Run(ctx); err != nil {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down journaler")
}

// journalSink records each event's ride.
func journalSink(j storage.Journal) ingest.Sink {
	return func(ctx context.Context, e ingest.Event) error {
		return j.Record(ctx, e.Ride)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func serveMetrics(addr string, db pinger, logger *slog.Logger) {
	logger.Info("metrics/health listening", "addr", addr)
	if err := http.ListenAndServe(addr, healthMux(db)); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}

func healthMux(db pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "journal not ready", 503)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	return mux
}
