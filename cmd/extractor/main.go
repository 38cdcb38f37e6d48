// Command extractor runs Stage C (Extractor) behind the shared stage
// runtime host: it invokes the vision LLM on a classified invoice's lowest
// page and publishes an Extracted event. Per spec §5 this host runs with a
// concurrency limiter of 1, since every delivery holds an outbound LLM
// call for the duration of its retry policy.
package main

import (
	"os"
	"time"

	"github.com/invoiceflow/pipeline/internal/adapters/bus/kafkabus"
	"github.com/invoiceflow/pipeline/internal/adapters/objectstore/diskstore"
	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
	"github.com/invoiceflow/pipeline/internal/stages/extractor"
	"github.com/invoiceflow/pipeline/internal/stages/extractor/llm"
)

const extractorConcurrency = 1

func main() {
	cfg := config.MustLoad()

	log, err := logger.New("extractor", cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	store, err := diskstore.New(objectStoreDir())
	if err != nil {
		log.Fatalf("extractor: open object store: %v", err)
	}

	bus := kafkabus.New(cfg.Kafka.Brokers)
	defer bus.Close()

	client := llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, 120*time.Second)

	handler := extractor.Handler(store, bus, client, cfg, log)
	budget := deliveryBudget(cfg, 180*time.Second)
	host := runtime.NewHost("extractor", handler, log, extractorConcurrency, budget)

	os.Exit(host.Serve(":" + listenPort()))
}

func objectStoreDir() string {
	if d := os.Getenv("OBJECT_STORE_DIR"); d != "" {
		return d
	}
	return "./data"
}

func listenPort() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8080"
}

func deliveryBudget(cfg *config.Config, ackDeadline time.Duration) time.Duration {
	d := ackDeadline - cfg.AckMargin
	if d <= 0 {
		d = 30 * time.Second
	}
	return d
}
