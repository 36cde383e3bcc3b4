package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/gomoncli/zadarma-bridge/internal/bridge"
	"github.com/gomoncli/zadarma-bridge/internal/config"
	"github.com/gomoncli/zadarma-bridge/internal/correlator"
	"github.com/gomoncli/zadarma-bridge/internal/notify"
	"github.com/gomoncli/zadarma-bridge/internal/publisher"
	"github.com/gomoncli/zadarma-bridge/internal/smsfly"
	"github.com/gomoncli/zadarma-bridge/internal/store"
	"github.com/gomoncli/zadarma-bridge/internal/zadarma"
)

func main() {
	configPath := flag.String("config", "/etc/zadarma-bridge/zadarma-bridge.yaml", "Path to config file")
	flag.Parse()

	// Optional .env next to the binary; real deployments use the unit file.
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("loading config")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatal("parsing log level")
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileStore := store.NewFile(cfg.Tracking.Path,
		store.WithLockTimeout(cfg.Tracking.LockTimeout()),
		store.WithLogger(log),
	)
	corr := correlator.New(fileStore,
		correlator.WithTTL(cfg.Tracking.TTL()),
		correlator.WithMaxAge(cfg.Tracking.MaxAge()),
	)

	dialer := zadarma.New(cfg.Zadarma.Key, cfg.Zadarma.Secret, cfg.Zadarma.MainPhone,
		zadarma.WithBaseURL(cfg.Zadarma.APIURL))

	var sms bridge.SMSSender
	if cfg.SMS.Key != "" {
		sms = smsfly.New(cfg.SMS.APIURL, cfg.SMS.Key, cfg.SMS.Source)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Enabled() {
		notifier = notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		log.Info("telegram notifications enabled")
	}

	var pub publisher.Publisher = publisher.Nop{}
	if cfg.MQTT.Enabled() {
		mqttPub, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      1,
		})
		if err != nil {
			log.WithError(err).Fatal("connecting to MQTT")
		}
		pub = mqttPub
		log.WithField("broker", cfg.MQTT.Broker).Info("connected to MQTT broker")
	}
	defer pub.Close()

	b := bridge.New(bridge.Options{
		Correlator:  corr,
		Dialplan:    cfg.Dialplan,
		Dialer:      dialer,
		SMS:         sms,
		SMSText:     cfg.SMS.Message,
		Notifier:    notifier,
		Publisher:   pub,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Logger:      log,
	})

	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	b.Routes(router)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", cfg.Listen).Info("webhook server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("webhook server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutting down webhook server")
		os.Exit(1)
	}

	log.Info("shutdown complete")
}
