// Command dlq runs the DLQ Processor: one Host per origin stage's
// dead-letter topic, draining each into its own quarantine area under the
// failed bucket (spec §4.7). All four hosts share one process and one
// object store, listening on consecutive ports starting at PORT (default
// 8090).
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/invoiceflow/pipeline/internal/adapters/objectstore/diskstore"
	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
	"github.com/invoiceflow/pipeline/internal/stages/dlq"
)

// origin names the stage whose dead-letter topic a Host drains.
type origin struct {
	topic string
	stage string
}

func main() {
	cfg := config.MustLoad()

	log, err := logger.New("dlq", cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	store, err := diskstore.New(objectStoreDir())
	if err != nil {
		log.Fatalf("dlq: open object store: %v", err)
	}

	origins := []origin{
		{cfg.Topics.UploadedDLQ, "normalizer"},
		{cfg.Topics.ConvertedDLQ, "classifier"},
		{cfg.Topics.ClassifiedDLQ, "extractor"},
		{cfg.Topics.ExtractedDLQ, "warehouse"},
	}

	base := basePort()
	budget := deliveryBudget(cfg)
	hosts := make([]*runtime.Host, len(origins))
	addrs := make([]string, len(origins))
	for i, o := range origins {
		handler := dlq.Handler(store, cfg, o.topic, o.stage, log)
		hosts[i] = runtime.NewHost("dlq-"+o.stage, handler, log.With("origin_stage", o.stage), cfg.StageConcurrency, budget)
		addrs[i] = fmt.Sprintf(":%d", base+i)
	}

	os.Exit(runtime.ServeAll(hosts, addrs, log))
}

func objectStoreDir() string {
	if d := os.Getenv("OBJECT_STORE_DIR"); d != "" {
		return d
	}
	return "./data"
}

func basePort() int {
	if p := os.Getenv("PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return 8090
}

func deliveryBudget(cfg *config.Config) time.Duration {
	d := 30*time.Second - cfg.AckMargin
	if d <= 0 {
		d = 10 * time.Second
	}
	return d
}
