package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/subspace-chat/internal/auth"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/config"
	"github.com/suPer8Hu/subspace-chat/internal/db"
	"github.com/suPer8Hu/subspace-chat/internal/email"
	"github.com/suPer8Hu/subspace-chat/internal/httpapi"
	"github.com/suPer8Hu/subspace-chat/internal/mailer"
	"github.com/suPer8Hu/subspace-chat/internal/models"
	"github.com/suPer8Hu/subspace-chat/internal/realtime"
	"github.com/suPer8Hu/subspace-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/subspace-chat/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN,
		&models.User{}, &models.Profile{},
		&chat.Conversation{}, &chat.Message{},
		&mailer.Job{},
	)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rds.Ping(pingCtx); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	cancel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// mail goes through the worker when rabbit is up, inline otherwise
	var queue mailer.Queue
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Printf("[Server] rabbitmq unavailable, delivering mail inline: %v", err)
	} else {
		defer pub.Close()
		queue = pub
	}
	mail := mailer.NewService(mailer.NewRepo(gdb), queue, mailer.SMTPSender{Cfg: email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}})

	hub := realtime.NewHub(0)
	var sink chat.EventSink = hub
	if cfg.RabbitEventsEnabled {
		bus, err := rabbitmq.NewEventBus(cfg.RabbitURL, cfg.RabbitEventsExchange)
		if err != nil {
			log.Fatalf("event bus: %v", err)
		}
		defer bus.Close()
		sink = bus
		go func() {
			if err := bus.Run(ctx, hub); err != nil && ctx.Err() == nil {
				log.Printf("[Server] event bus stopped: %v", err)
			}
		}()
	}

	gw := auth.NewGateway(gdb, rds, mail, cfg.JWTSecret, cfg.JWTTTL)
	r := httpapi.NewRouter(httpapi.Deps{
		Auth:              gw,
		Chat:              chat.NewService(chat.NewRepo(gdb), sink),
		Hub:               hub,
		AuthRatePerMinute: cfg.AuthRatePerMinute,
		CORSOrigins:       cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("server shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
