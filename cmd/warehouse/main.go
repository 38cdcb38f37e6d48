// Command warehouse runs Stage D (Warehouse Writer) behind the shared
// stage runtime host: it inserts a validated extraction into the
// analytical warehouse, archives the original landing object, and
// publishes a Loaded event.
package main

import (
	"os"
	"time"

	"github.com/invoiceflow/pipeline/internal/adapters/bus/kafkabus"
	"github.com/invoiceflow/pipeline/internal/adapters/objectstore/diskstore"
	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
	"github.com/invoiceflow/pipeline/internal/stages/warehouse"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.New("warehouse", cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	db, err := warehouse.Connect(cfg.Warehouse.DSN)
	if err != nil {
		log.Fatalf("warehouse: connect: %v", err)
	}
	defer db.Close()

	log.Infof("warehouse: running migrations")
	if err := warehouse.RunMigrations(db); err != nil {
		log.Fatalf("warehouse: migrate: %v", err)
	}

	store, err := diskstore.New(objectStoreDir())
	if err != nil {
		log.Fatalf("warehouse: open object store: %v", err)
	}

	bus := kafkabus.New(cfg.Kafka.Brokers)
	defer bus.Close()

	repo := warehouse.NewPostgresRepository(db)
	handler := warehouse.Handler(store, bus, repo, cfg, log)
	budget := deliveryBudget(cfg, 30*time.Second)
	host := runtime.NewHost("warehouse", handler, log, cfg.StageConcurrency, budget)

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
