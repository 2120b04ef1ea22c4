package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/credimarket-api/internal/application/auth"
	"github.com/jhoicas/credimarket-api/internal/application/lifecycle"
	"github.com/jhoicas/credimarket-api/internal/application/loans"
	"github.com/jhoicas/credimarket-api/internal/application/notifications"
	"github.com/jhoicas/credimarket-api/internal/application/session"
	"github.com/jhoicas/credimarket-api/internal/domain/store"
	"github.com/jhoicas/credimarket-api/internal/infrastructure/events"
	"github.com/jhoicas/credimarket-api/internal/infrastructure/memstore"
	infrapdf "github.com/jhoicas/credimarket-api/internal/infrastructure/pdf"
	"github.com/jhoicas/credimarket-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/credimarket-api/internal/interfaces/http"
	"github.com/jhoicas/credimarket-api/pkg/config"
	"github.com/jhoicas/credimarket-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()

	// Store de documentos: Postgres si está configurado, en memoria si no
	// (modo dev, datos volátiles).
	var docStore store.Store
	var archiver loans.ReceiptArchiver
	if cfg.DB.Enabled() {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()

		pgStore, err := postgres.NewDocStore(ctx, pool, log)
		if err != nil {
			log.Fatal().Err(err).Msg("inicializar store de documentos")
		}
		docStore = pgStore
		archiver = postgres.NewReceiptRepository(pool)
	} else {
		log.Warn().Msg("sin Postgres configurado: store en memoria (modo dev)")
		docStore = memstore.New()
	}

	// Publicador de eventos de ciclo de vida. AMQP_URL vacío = deshabilitado.
	var publisher lifecycle.EventPublisher
	if cfg.AMQP.URL != "" {
		pub, err := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a RabbitMQ")
		}
		defer pub.Close()
		publisher = pub
	}

	fanout := notifications.NewFanout(docStore, log)
	machine := lifecycle.NewMachine(docStore, fanout, publisher, log)
	engine := loans.NewEngine(docStore, loans.Terms{
		RatePercent: decimal.NewFromFloat(cfg.Ledger.RatePercent),
		TermMonths:  cfg.Ledger.TermMonths,
	}, fanout, archiver, log)

	opener := session.NewOpener(docStore, log)
	registry := session.NewRegistry(opener, log)
	defer registry.CloseAll()

	authUC := auth.NewAuthUseCase(docStore, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	// Cambios de principal: un login reabre la sesión de ese principal (la
	// anterior se cierra primero); un logout cierra solo la suya — jamás las
	// de otros principales.
	principalChanges := authUC.PrincipalChanges()
	go func() {
		for ev := range principalChanges {
			if ev.SignedOut {
				registry.Close(ev.ID)
				continue
			}
			if _, err := registry.Open(ctx, ev.ID); err != nil {
				log.Error().Err(err).Str("principal", ev.ID).Msg("abrir sesión")
			}
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:    authUC,
		Registry:  registry,
		Machine:   machine,
		Engine:    engine,
		Fanout:    fanout,
		Store:     docStore,
		PDF:       infrapdf.NewReceiptGenerator(),
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
