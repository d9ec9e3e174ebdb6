package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/Rutuja-07-code/pharma-agent-ai/internal/core"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/db"
	httpserver "github.com/Rutuja-07-code/pharma-agent-ai/internal/http"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/llm"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/notify"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/ocr"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/payment"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/reminder"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/rx"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/session"

	_ "github.com/lib/pq"
)

func main() {
	// Load environment variables from .env when present.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL must be set")
	}
	// Open database connection
	dbConn, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}
	if err := db.Migrate(context.Background(), dbConn); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	repo := db.NewRepository(dbConn)

	// Initialize OpenAI LLM client (uses env: OPENAI_API_KEY, OPENAI_MODEL,
	// OPENAI_BASE_URL)
	llmClient := llm.NewOpenAIClient()

	// OCR service is optional; without it prescription uploads fail
	// verification rather than crashing.
	var ocrClient ocr.Client
	if url := os.Getenv("OCR_SERVICE_URL"); url != "" {
		ocrClient = ocr.NewHTTPClient(url)
	}

	// Session store: Redis when configured, in-process memory otherwise.
	var sessions session.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := rd.NewClient(&rd.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to ping redis: %v", err)
		}
		sessions = session.NewRedisStore(rdb, "", 24*time.Hour)
		log.Printf("using redis session store at %s", addr)
	} else {
		sessions = session.NewMemoryStore()
		log.Print("using in-memory session store")
	}

	// Payment handoff is optional; without a base URL orders complete
	// immediately after confirmation.
	var payments core.PaymentLinker
	if base := os.Getenv("PAYMENT_LINK_BASE"); base != "" {
		payments = payment.NewLinkGenerator(base)
	}

	verifier := rx.NewVerifier(repo, ocrClient, repo, os.Getenv("PRESCRIPTION_DIR"))

	notifier := db.NewNotifier(dbConn, os.Getenv("POSTGRES_NOTIFY_CHANNEL"))
	executor := core.NewExecutor(repo, repo, repo, notifier)
	agent := core.NewAgent(
		core.NewExtractor(llmClient),
		core.NewResolver(repo),
		core.NewEvaluator(repo),
		executor,
		repo,
		sessions,
		payments,
	)

	reminders := reminder.NewService(repo, notify.NewEmailSenderFromEnv(), notify.NewWhatsAppSenderFromEnv())

	// Schedule the daily refill reminder run.
	spec := os.Getenv("REMINDER_CRON")
	if spec == "" {
		spec = "0 9 * * *"
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(spec, reminders.Run); err != nil {
		log.Fatalf("invalid REMINDER_CRON %q: %v", spec, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := httpserver.NewServer(repo, agent, verifier, reminders)
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port
	log.Printf("Listening on %s", addr)
	if err := http.ListenAndServe(addr, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
