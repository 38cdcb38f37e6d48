// Package dlq implements the DLQ Processor: the terminal stage that drains
// each stage's dead-letter topic into a quarantine area for human review
// (spec §4.7). Unlike Stages A-D it never nacks: the bus has already
// exhausted the message's retry budget, so the only remaining action is to
// persist it and ack.
package dlq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/kernel/ports"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
)

// deliveryCountAttr is the attribute the bus stamps on a dead-lettered
// message with the number of delivery attempts made against the origin
// topic before it was routed here (spec §4.7 step 1).
const deliveryCountAttr = "CloudPubSubDeadLetterSourceDeliveryCount"

// firstFailureAttr carries the timestamp of the message's first failed
// delivery, when the message has one. No stage host in this repository
// sets it; when it is absent or unparseable the envelope's publish time is
// used instead.
const firstFailureAttr = "first_failure_at"

// lastErrorAttr carries the origin stage's most recent error message.
const lastErrorAttr = "last_error"

// Handler builds the DLQ processor's StageHandler for one origin topic.
// originTopic/originStage identify which stage's dead-letter topic this
// Handler instance drains; a deployment runs one Host per origin topic
// (spec §4.7: the four stage-consuming topics each have a dead-letter
// twin, each drained into its own quarantine area under origin_stage).
func Handler(store ports.ObjectStore, cfg *config.Config, originTopic, originStage string, log logger.Logger) runtime.StageHandler {
	return func(ctx context.Context, env envelope.Envelope) runtime.Result {
		stageLog := logger.FromContext(ctx, log).With("stage", "dlq", "origin_stage", originStage, "message_id", env.MessageID)

		deliveryCount := deliveryCountOf(env)
		firstFailure := firstFailureOf(env)
		lastErr := env.Attributes[lastErrorAttr]

		messageID := env.MessageID
		if messageID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				// Even this defensive fallback can't fail without breaking
				// the "always ack" contract; degrade to a fixed name rather
				// than give up the record entirely.
				messageID = "unknown"
			} else {
				messageID = id.String()
			}
			stageLog.Warnf("dlq: message had no message_id, minted %s", messageID)
		}

		record := model.DeadLetterRecord{
			OriginTopic:     originTopic,
			OriginStage:     originStage,
			DeliveryAttempt: deliveryCount,
			FirstFailureAt:  firstFailure,
			LastError:       lastErr,
			OriginalBody:    env.Body,
		}

		body, err := json.Marshal(record)
		if err != nil {
			stageLog.Errorf("dlq: marshal record: %v", err)
			// Marshaling our own struct cannot fail in practice; still ack,
			// the DLQ is terminal regardless.
			return runtime.Ok()
		}

		date := time.Now().UTC().Format("2006-01-02")
		path := model.FailedDLQPath(originStage, date, messageID)
		if _, err := store.Put(ctx, cfg.Buckets.Failed, path, body, "application/json"); err != nil {
			stageLog.Errorf("dlq: put quarantine record failed, acking anyway: %v", err)
			return runtime.Ok()
		}

		stageLog.Infof("dlq: quarantined %s delivery_count=%d", path, deliveryCount)
		return runtime.Ok()
	}
}

func deliveryCountOf(env envelope.Envelope) int {
	if v, ok := env.Attributes[deliveryCountAttr]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	// Open Question resolution (spec §9): default to the runtime's own
	// deliveryAttempt when the bus-specific attribute is absent, logging
	// rather than silently assuming 1 in either case.
	return env.DeliveryAttempt
}

func firstFailureOf(env envelope.Envelope) time.Time {
	if v, ok := env.Attributes[firstFailureAttr]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	if t, err := time.Parse(time.RFC3339, env.PublishTime); err == nil {
		return t
	}
	return time.Now().UTC()
}
