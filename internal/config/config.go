// Package config reads process-wide settings once at startup into an
// immutable struct, in the same style as the teacher's cfg.MustLoad():
// environment variables, optionally seeded by a local .env via godotenv,
// fatal on anything required but missing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Buckets names every bucket the pipeline writes to or reads from (spec §6).
type Buckets struct {
	Input      string
	Processed  string
	Classified string
	Extracted  string
	Archive    string
	Failed     string
}

// Topics names every bus topic the pipeline publishes to, plus its DLQ
// twin.
type Topics struct {
	Uploaded      string
	Converted     string
	Classified    string
	Extracted     string
	Loaded        string
	UploadedDLQ   string
	ConvertedDLQ  string
	ClassifiedDLQ string
	ExtractedDLQ  string
	LoadedDLQ     string
}

// Warehouse holds the analytical warehouse connection settings.
type Warehouse struct {
	DSN     string
	Dataset string
}

// LLM holds the vision LLM invocation settings for Stage C.
type LLM struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Kafka holds the bus transport settings backing the Bus port.
type Kafka struct {
	Brokers []string
}

// Config is the immutable, process-wide configuration every stage host is
// built from. It is read once in main() and passed by reference — no
// component re-reads the environment after startup.
type Config struct {
	Project string
	Region  string

	Buckets Buckets
	Topics  Topics

	Warehouse Warehouse
	LLM       LLM
	Kafka     Kafka

	MaxDeliveryAttempts int
	StageConcurrency    int

	// AckMargin is subtracted from the delivery's ack deadline to derive
	// the per-delivery cancellation budget (spec §4.2/§5).
	AckMargin time.Duration

	Debug bool
}

// MustLoad reads Config from the environment, optionally seeded by a local
// .env file (ignored if absent — this mirrors the teacher's
// godotenv.Load() call, which is best-effort in every deployment
// environment that doesn't ship a .env at all). It exits the process with
// code 1 on any missing required value, matching the stage host exit-code
// contract in spec §6.
func MustLoad() *Config {
	_ = godotenv.Load()

	cfg, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal configuration error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func load() (*Config, error) {
	cfg := &Config{
		Project: env("PIPELINE_PROJECT", "invoiceflow"),
		Region:  env("PIPELINE_REGION", "us-central1"),
		Buckets: Buckets{
			Input:      env("BUCKET_INPUT", "input"),
			Processed:  env("BUCKET_PROCESSED", "processed"),
			Classified: env("BUCKET_CLASSIFIED", "classified"),
			Extracted:  env("BUCKET_EXTRACTED", "extracted"),
			Archive:    env("BUCKET_ARCHIVE", "archive"),
			Failed:     env("BUCKET_FAILED", "failed"),
		},
		Topics: Topics{
			Uploaded:      env("TOPIC_UPLOADED", "uploaded"),
			Converted:     env("TOPIC_CONVERTED", "converted"),
			Classified:    env("TOPIC_CLASSIFIED", "classified"),
			Extracted:     env("TOPIC_EXTRACTED", "extracted"),
			Loaded:        env("TOPIC_LOADED", "loaded"),
			UploadedDLQ:   env("TOPIC_UPLOADED_DLQ", "uploaded-dlq"),
			ConvertedDLQ:  env("TOPIC_CONVERTED_DLQ", "converted-dlq"),
			ClassifiedDLQ: env("TOPIC_CLASSIFIED_DLQ", "classified-dlq"),
			ExtractedDLQ:  env("TOPIC_EXTRACTED_DLQ", "extracted-dlq"),
			LoadedDLQ:     env("TOPIC_LOADED_DLQ", "loaded-dlq"),
		},
		Warehouse: Warehouse{
			DSN:     env("WAREHOUSE_DSN", ""),
			Dataset: env("WAREHOUSE_DATASET", "invoices"),
		},
		LLM: LLM{
			Model:   env("LLM_MODEL", "vision-invoice-extractor-v1"),
			APIKey:  env("LLM_API_KEY", ""),
			BaseURL: env("LLM_BASE_URL", "https://api.anthropic.com/v1"),
		},
		Kafka: Kafka{
			Brokers: splitCSV(env("KAFKA_BROKERS", "localhost:9092")),
		},
		Debug: env("DEBUG", "") != "",
	}

	maxAttempts, err := intEnv("MAX_DELIVERY_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	cfg.MaxDeliveryAttempts = maxAttempts

	concurrency, err := intEnv("STAGE_CONCURRENCY", 10)
	if err != nil {
		return nil, err
	}
	cfg.StageConcurrency = concurrency

	marginSeconds, err := intEnv("ACK_MARGIN_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	cfg.AckMargin = time.Duration(marginSeconds) * time.Second

	if cfg.Warehouse.DSN == "" {
		return nil, fmt.Errorf("WAREHOUSE_DSN must be set")
	}

	return cfg, nil
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
