// Command classifier runs Stage B (Classifier) behind the shared stage
// runtime host: it assigns a vendor to a Converted invoice's pages and
// publishes a Classified event.
package main

import (
	"os"
	"time"

	"github.com/invoiceflow/pipeline/internal/adapters/bus/kafkabus"
	"github.com/invoiceflow/pipeline/internal/adapters/objectstore/diskstore"
	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
	"github.com/invoiceflow/pipeline/internal/stages/classifier"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.New("classifier", cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	store, err := diskstore.New(objectStoreDir())
	if err != nil {
		log.Fatalf("classifier: open object store: %v", err)
	}

	bus := kafkabus.New(cfg.Kafka.Brokers)
	defer bus.Close()

	handler := classifier.Handler(store, bus, classifier.NoopContentClassifier{}, cfg, log)
	budget := deliveryBudget(cfg, 30*time.Second)
	host := runtime.NewHost("classifier", handler, log, cfg.StageConcurrency, budget)

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
		d = 10 * time.Second
	}
	return d
}
