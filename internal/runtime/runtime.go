// Package runtime is the stage host every one of the five services runs
// behind: it terminates the bus's push-subscription protocol, decodes the
// envelope, bounds each delivery by a cancellation deadline and a
// concurrency limiter, invokes the stage's handler, and maps the handler's
// outcome to the HTTP status the bus reads as the retry signal (spec §4.2).
package runtime

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/logger"
)

// Outcome classifies how a stage handler's delivery ended.
type Outcome int

const (
	// Success: ack, no redelivery.
	Success Outcome = iota
	// TransientFailure: nack via 5xx; bus redelivers with backoff.
	TransientFailure
	// PermanentFailure: the handler has already quarantined the offending
	// data itself; the runtime still acks (2xx) so the bus's retry budget
	// isn't wasted on an error that can never succeed.
	PermanentFailure
)

// Result is what a StageHandler returns for one delivery.
type Result struct {
	Outcome Outcome
	Err     error // logged when non-nil, regardless of Outcome
}

func Ok() Result                 { return Result{Outcome: Success} }
func Transient(err error) Result { return Result{Outcome: TransientFailure, Err: err} }
func Permanent(err error) Result { return Result{Outcome: PermanentFailure, Err: err} }

// StageHandler processes one decoded delivery. ctx carries a deadline
// derived from the configured per-delivery budget; handlers must honor it
// on every blocking call (spec §4.2 "Cancellation").
type StageHandler func(ctx context.Context, env envelope.Envelope) Result

// Limiter bounds the number of deliveries a Host processes concurrently,
// per spec §5 (1 for the extractor host, <=10 for the others).
type Limiter chan struct{}

// NewLimiter returns a Limiter with the given capacity.
func NewLimiter(capacity int) Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	return make(Limiter, capacity)
}

func (l Limiter) acquire(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l Limiter) release() { <-l }

// Host wraps a StageHandler behind a fiber app exposing POST /push and
// GET /healthz, exactly the two-route surface spec.md's ambient stack
// calls for.
type Host struct {
	Name            string
	Handler         StageHandler
	Logger          logger.Logger
	Limiter         Limiter
	DeliveryBudget  time.Duration // ack deadline minus safety margin
}

// NewHost builds a Host. budget is the per-delivery cancellation window
// (ack deadline minus the configured safety margin); concurrency is the
// Limiter capacity.
func NewHost(name string, handler StageHandler, log logger.Logger, concurrency int, budget time.Duration) *Host {
	return &Host{
		Name:           name,
		Handler:        handler,
		Logger:         log,
		Limiter:        NewLimiter(concurrency),
		DeliveryBudget: budget,
	}
}

// App builds the fiber application for this Host.
func (h *Host) App() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "stage": h.Name})
	})
	app.Post("/push", h.handlePush)
	return app
}

// Serve runs the Host's fiber app on addr until SIGINT/SIGTERM, then drains
// in-flight deliveries before returning. The return value is the process
// exit code every cmd/<service>/main.go propagates directly via os.Exit,
// per spec §6: 0 for a clean shutdown, 2 if the port never bound or the
// shutdown itself failed.
func (h *Host) Serve(addr string) int {
	app := h.App()

	bound := make(chan error, 1)
	go func() { bound <- app.Listen(addr) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-bound:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.Logger.Errorf("%s: listen on %s: %v", h.Name, addr, err)
			return 2
		}
	case <-quit:
		h.Logger.Infof("%s: shutting down", h.Name)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			h.Logger.Errorf("%s: shutdown: %v", h.Name, err)
			return 2
		}
	}
	return 0
}

// ServeAll runs several Hosts concurrently, each on its own addr, and blocks
// until a single SIGINT/SIGTERM drains all of them together. Used by the
// DLQ processor, which runs one Host per origin topic in a single process
// (spec §4.7: one quarantine area per origin stage, not one process each).
func ServeAll(hosts []*Host, addrs []string, log logger.Logger) int {
	apps := make([]*fiber.App, len(hosts))
	bound := make(chan error, len(hosts))
	for i, h := range hosts {
		apps[i] = h.App()
		go func(app *fiber.App, addr string) { bound <- app.Listen(addr) }(apps[i], addrs[i])
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-bound:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("serve: a host failed to bind: %v", err)
			return 2
		}
	case <-quit:
		log.Infof("shutting down %d hosts", len(apps))
	}

	exit := 0
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, app := range apps {
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Errorf("%s: shutdown: %v", hosts[i].Name, err)
			exit = 2
		}
	}
	return exit
}

func (h *Host) handlePush(c *fiber.Ctx) error {
	env, err := envelope.Decode(c.Body())
	if err != nil {
		// Poison: unparseable envelope. Logged and acked; never retried.
		h.Logger.Errorf("%s: envelope unparseable, acking poison delivery: %v", h.Name, err)
		return c.SendStatus(fiber.StatusOK)
	}

	log := logger.FromContext(c.Context(), h.Logger).With(
		"message_id", env.MessageID,
		"delivery_attempt", env.DeliveryAttempt,
	)
	if env.DeliveryAttemptPresent {
		log.Debugf("%s: delivery_attempt=%d reported by bus", h.Name, env.DeliveryAttempt)
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.DeliveryBudget)
	defer cancel()

	if err := h.Limiter.acquire(ctx); err != nil {
		log.Warnf("%s: limiter wait canceled: %v", h.Name, err)
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	defer h.Limiter.release()

	result := h.Handler(ctx, env)

	switch result.Outcome {
	case Success:
		if result.Err != nil {
			log.Infof("%s: delivery succeeded with a warning: %v", h.Name, result.Err)
		}
		return c.SendStatus(fiber.StatusOK)
	case PermanentFailure:
		log.Errorf("%s: permanent failure, quarantined and acking: %v", h.Name, result.Err)
		return c.SendStatus(fiber.StatusOK)
	default: // TransientFailure
		log.Warnf("%s: transient failure, nacking for redelivery: %v", h.Name, result.Err)
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
}
