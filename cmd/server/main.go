package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"pdf-podcaster/internal/actions"
	"pdf-podcaster/internal/config"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/handlers"
	"pdf-podcaster/internal/hub"
	"pdf-podcaster/internal/logging"
	"pdf-podcaster/internal/metrics"
	"pdf-podcaster/internal/middleware"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/realtime"
	"pdf-podcaster/internal/session"
	"pdf-podcaster/internal/storage"
	"pdf-podcaster/internal/submission"
	"pdf-podcaster/internal/webhook"
	"pdf-podcaster/web"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

// Per operator: 5 requests per second, bursts of 20.
const (
	requestRate  = rate.Limit(5)
	requestBurst = 20
)

func newRouter(h *handlers.Handlers, auth *middleware.Auth, limiter *middleware.RateLimiterMiddleware) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.ServeWebApp).Methods(http.MethodGet)
	r.HandleFunc("/rss/{token}", h.GetRSSFeed).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/ws", auth.Middleware(http.HandlerFunc(h.ServeWS))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware, limiter.Middleware)
	api.HandleFunc("/auth", h.PostAuth).Methods(http.MethodPost)
	api.HandleFunc("/episodes", h.GetEpisodes).Methods(http.MethodGet)
	api.HandleFunc("/episodes", h.PostEpisode).Methods(http.MethodPost)
	api.HandleFunc("/submissions/{id}", h.GetSubmission).Methods(http.MethodGet)
	api.HandleFunc("/selection", h.PostSelection).Methods(http.MethodPost)
	api.HandleFunc("/selection", h.DeleteSelection).Methods(http.MethodDelete)
	api.HandleFunc("/view", h.GetView).Methods(http.MethodGet)
	api.HandleFunc("/view/refresh", h.PostRefresh).Methods(http.MethodPost)
	api.HandleFunc("/actions/approve", h.PostApprove).Methods(http.MethodPost)
	api.HandleFunc("/actions/text-files", h.PostTextFiles).Methods(http.MethodPost)
	api.HandleFunc("/actions/assets", h.PostAssets).Methods(http.MethodPost)
	api.HandleFunc("/actions/publish", h.PostPublish).Methods(http.MethodPost)
	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.Setup(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db.InitDB(cfg.DatabaseURL)
	if cfg.InstallNotifyTrigger {
		if err := realtime.InstallTrigger(ctx, db.DB); err != nil {
			log.Fatalf("Failed to install notify trigger: %v", err)
		}
	}

	broker := realtime.NewBroker(logger)
	go func() {
		if err := broker.Run(ctx, realtime.NewPQListener(cfg.DatabaseURL, logger)); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Change listener stopped, falling back to polling only")
		}
	}()

	wsHub := hub.New(logger)
	sinks := notice.MultiSink{wsHub}
	var bot *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Fatalf("Failed to create Telegram bot: %v", err)
		}
		if cfg.TelegramNotifyChatID != 0 {
			sinks = append(sinks, notice.NewTelegramSink(bot, cfg.TelegramNotifyChatID, logger))
		}
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()

	store := db.Repo{}
	manager := submission.NewManager(ctx, store, webhook.NewClient(cfg.SubmitWebhookURL, cfg.AudioWebhookURL), broker, sinks, logger, submission.Options{
		WaitBudget:   cfg.SubmitWaitBudget,
		PollInterval: cfg.PollInterval,
	})
	covers := storage.NewCoverArtStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.CoverArtBucket)
	svc := actions.NewService(store, asynqClient, covers, sinks, logger)

	sessions := session.NewRegistry(func(operator int64) *session.Coordinator {
		c := session.NewCoordinator(ctx, operator, session.Deps{
			Store:        store,
			Subscriber:   broker,
			Submitter:    manager,
			Actions:      svc,
			Sink:         sinks,
			Log:          logger,
			PollInterval: cfg.PollInterval,
		})
		wsHub.Attach(c)
		return c
	})
	wsHub.OnIdle(sessions.Release)

	tmpl, err := web.Templates()
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}
	h := handlers.New(handlers.Deps{
		Templates: tmpl,
		Sessions:  sessions,
		Flows:     manager,
		Store:     store,
		Hub:       wsHub,
		BaseURL:   cfg.BaseURL,
		FeedToken: cfg.FeedToken,
		Operators: cfg.OperatorIDs,
		Log:       logger,
	})
	if bot != nil {
		go h.StartTelegramBot(ctx, bot)
	}

	auth := middleware.NewAuth(cfg.TelegramBotToken, cfg.OperatorIDs, logger)
	limiter := middleware.NewRateLimiterMiddleware(requestRate, requestBurst, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(h, auth, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("HTTP server shutdown")
		}
	}()

	log.Infof("Starting server on :%s (commit: %s)", cfg.Port, CommitSHA)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	sessions.CloseAll()
	manager.Wait()
}
