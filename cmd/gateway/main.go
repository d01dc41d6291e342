package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/karteekp20/aegisgate/pkg/audit"
	"github.com/karteekp20/aegisgate/pkg/config"
	"github.com/karteekp20/aegisgate/pkg/detect"
	"github.com/karteekp20/aegisgate/pkg/escalate"
	"github.com/karteekp20/aegisgate/pkg/gateway"
	"github.com/karteekp20/aegisgate/pkg/guard"
	"github.com/karteekp20/aegisgate/pkg/monitor"
	"github.com/karteekp20/aegisgate/pkg/risk"
	"github.com/karteekp20/aegisgate/pkg/redact"
	"github.com/karteekp20/aegisgate/pkg/resilience"
	"github.com/karteekp20/aegisgate/pkg/semantic"
	"github.com/karteekp20/aegisgate/pkg/telemetry"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServer()
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: aegisgate scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("AegisGate v%s\n", Version)
		fmt.Println("LLM request security gateway")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("AegisGate v%s - LLM request security gateway\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  aegisgate serve         Start the HTTP gateway")
	fmt.Println("  aegisgate scan <text>   Run one request through the pipeline")
	fmt.Println("  aegisgate version       Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  AEGIS_LISTEN_ADDR        HTTP bind address (default :8080)")
	fmt.Println("  AEGIS_CONFIG             Path to a YAML config file")
	fmt.Println("  AEGIS_AUDIT_SIGNING_KEY  HMAC key for audit signatures")
	fmt.Println("  AEGIS_PII_POLICY         deny (block on high-confidence PII) or redact")
	fmt.Println("  AEGIS_SHADOW_ENDPOINT    Shadow-agent classifier URL")
	fmt.Println("  AEGIS_REDIS_ADDR         Redis for shared rate limiting")
	fmt.Println("  AEGIS_NER_MODEL_PATH     ONNX token-classification model")
}

// buildPipeline wires the full stack from config. The returned closer
// drains buffered sinks and must run at shutdown.
func buildPipeline(cfg *config.Config, logger *zap.Logger, counters *telemetry.Counters) (*gateway.Pipeline, func(), error) {
	var closers []func()
	closer := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	redactor, err := redact.New(redact.Strategy(cfg.Strategy), []byte(cfg.RedactionKey))
	if err != nil {
		return nil, nil, fmt.Errorf("redactor: %w", err)
	}

	// Semantic corpus scorer is optional: a load failure degrades to
	// rules-only scanning.
	var scorer semantic.Scorer
	if cfg.EnableSemantics {
		seeds, err := semantic.LoadSeedDir(cfg.SeedDir)
		if err != nil {
			logger.Warn("seed corpus load failed, using builtins", zap.Error(err))
			seeds = semantic.BuiltinSeeds()
		}
		cs, err := semantic.NewCorpusScorer(context.Background(), semantic.LocalEmbeddingFunc(), seeds, logger)
		if err != nil {
			logger.Warn("semantic scoring disabled", zap.Error(err))
		} else {
			scorer = cs
			logger.Info("semantic scoring enabled", zap.Int("seeds", len(seeds)))
		}
	}

	var extra []detect.Detector
	if detect.NEREnabled() {
		ner := detect.NewNERDetectorWithFallback(detect.NERConfig{}, logger)
		extra = append(extra, ner)
		closers = append(closers, func() { _ = ner.Close() })
		logger.Info("NER detection enabled")
	}

	var escalator *escalate.Escalator
	if cfg.ShadowEndpoint != "" {
		breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			Cooldown:         cfg.BreakerCooldown,
		})
		var window resilience.WindowCounter
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			closers = append(closers, func() { _ = client.Close() })
			window = resilience.NewRedisWindow(client, "")
			logger.Info("rate windows backed by redis", zap.String("addr", cfg.RedisAddr))
		} else {
			window = resilience.NewMemoryWindow()
		}
		limiter := resilience.NewRateLimiter(resilience.LimiterConfig{
			BucketCapacity:  float64(cfg.RateBucket),
			RefillPerSecond: cfg.RateRefill,
			WindowMax:       int64(cfg.RateWindowMax),
			Window:          cfg.RateWindow,
		}, window)

		classifier := escalate.NewHTTPClassifier(cfg.ShadowEndpoint, cfg.ShadowAPIKey, 16)
		escalator = escalate.New(escalate.Config{
			Trigger: cfg.ShadowTrigger,
			Timeout: cfg.ShadowTimeout,
		}, classifier, breaker, limiter, logger)
		logger.Info("shadow-agent escalation enabled", zap.String("endpoint", cfg.ShadowEndpoint))
	}

	sinks := []audit.Sink{audit.NewLogSink(logger)}
	if cfg.PostgresDSN != "" {
		pg, err := audit.NewPostgresSink(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres sink: %w", err)
		}
		sinks = append(sinks, pg)
		logger.Info("audit records persisted to postgres")
	}
	if cfg.ClickHouseDSN != "" {
		ch, err := audit.NewClickHouseSink(cfg.ClickHouseDSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse sink: %w", err)
		}
		sinks = append(sinks, ch)
		logger.Info("audit analytics streamed to clickhouse")
	}
	recorder := audit.NewRecorder(audit.NewSigner([]byte(cfg.AuditSigningKey)), logger, sinks...)
	closers = append(closers, func() { _ = recorder.Close() })

	pipeline, err := gateway.New(gatewayConfig(cfg), passthroughExecutor, gateway.Options{
		Scorer:         scorer,
		Redactor:       redactor,
		ExtraDetectors: extra,
		Escalator:      escalator,
		Recorder:       recorder,
		Logger:         logger,
		Counters:       counters,
	})
	if err != nil {
		closer()
		return nil, nil, err
	}
	return pipeline, closer, nil
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	return gateway.Config{
		Input: guard.InputConfig{
			BlockThreshold:      cfg.BlockThreshold,
			MinEntityConfidence: cfg.MinEntityConfidence,
			PIIRiskWeight:       cfg.PIIRiskWeight,
			PIIPolicy:           guard.PIIPolicy(cfg.PIIPolicy),
		},
		Output: guard.OutputConfig{
			BlockThreshold:      cfg.BlockThreshold,
			MinEntityConfidence: cfg.MinEntityConfidence,
			PIIRiskWeight:       cfg.PIIRiskWeight,
		},
		Monitor: monitor.Config{
			WindowSize:        cfg.MonitorWindow,
			ExactLoopN:        cfg.ExactLoopN,
			SemanticThreshold: cfg.SemanticThreshold,
			TokenBudget:       cfg.TokenBudget,
		},
		Risk: risk.Config{BlockThreshold: cfg.BlockThreshold},
	}
}

// passthroughExecutor returns the sanitized input unchanged. The gateway
// runs as a scanning sidecar: callers evaluate text, then invoke their
// own agent with the sanitized form.
func passthroughExecutor(_ context.Context, sanitized string, _ monitor.ReportFunc) (string, error) {
	return sanitized, nil
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}
	cfg.MustValidate()

	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	counters := &telemetry.Counters{}
	pipeline, closePipeline, err := buildPipeline(cfg, logger, counters)
	if err != nil {
		logger.Fatal("pipeline init failed", zap.Error(err))
	}
	defer closePipeline()

	app := fiber.New(fiber.Config{AppName: "AegisGate"})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"version":  Version,
			"counters": counters.Snapshot(),
		})
	})

	app.Post("/v1/evaluate", func(c fiber.Ctx) error {
		if cfg.APIKey != "" {
			if c.Get("Authorization") != "Bearer "+cfg.APIKey {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
			}
		}

		var req gateway.Request
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		res, err := pipeline.Evaluate(c.Context(), req)
		switch {
		case errors.Is(err, gateway.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return c.Status(fiber.StatusRequestTimeout).JSON(res)
		case err != nil:
			logger.Error("evaluation failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "evaluation failed"})
		}
		return c.JSON(res)
	})

	go func() {
		logger.Info("gateway listening", zap.String("addr", cfg.ListenAddr))
		if err := app.Listen(cfg.ListenAddr); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func runCLIScan(text string) {
	cfg := config.NewDefaultConfig()

	logger := zap.NewNop()
	pipeline, closePipeline, err := buildPipeline(cfg, logger, &telemetry.Counters{})
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}
	defer closePipeline()

	res, err := pipeline.Evaluate(context.Background(), gateway.Request{Text: text, CallerID: "cli"})
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
}
