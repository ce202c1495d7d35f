package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/libeufin-go/corebank/internal/auth"
	"github.com/libeufin-go/corebank/internal/config"
	"github.com/libeufin-go/corebank/internal/httpapi"
	"github.com/libeufin-go/corebank/internal/money"
	"github.com/libeufin-go/corebank/internal/store"
	"github.com/libeufin-go/corebank/internal/tan"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("parse dsn")
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MinConns = 1
	poolCfg.HealthCheckPeriod = 10 * time.Second
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(startCtx, poolCfg)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer pool.Close()

	if err := pool.Ping(startCtx); err != nil {
		log.WithError(err).Fatal("db ping")
	}

	if cfg.DBMigrate {
		log.Info("running migrations")
		if err := store.Migrate(startCtx, pool); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}

	st := store.New(pool, cfg.Currency, log)

	threshold, err := money.Parse(cfg.Currency + ":" + cfg.DefaultDebitThreshold)
	if err != nil {
		log.WithError(err).Fatal("parse default debit threshold")
	}

	var bonus *money.Amount
	if cfg.RegistrationBonus != "" {
		b, err := money.Parse(cfg.RegistrationBonus)
		if err != nil {
			log.WithError(err).Fatal("parse registration bonus")
		}
		bonus = &b
	}

	st.SetPolicy(store.Policy{
		AllowRegistrations:       cfg.AllowRegistrations,
		AllowDeletions:           cfg.AllowDeletions,
		AllowConversion:          cfg.AllowConversion,
		AllowEditName:            cfg.AllowEditName,
		AllowEditCashoutPaytoURI: cfg.AllowEditCashoutPaytoURI,
		DefaultDebitThreshold:    threshold,
		RegistrationBonus:        bonus,
		TokenDefaultTTL:          func() int64 { return int64(cfg.TokenDefaultTTL.Seconds()) },
	})

	if len(cfg.TanScriptPath) > 0 {
		st.SetTanSender(&tan.ScriptSender{ScriptPath: cfg.TanScriptPath})
	}

	gate := auth.NewGate(st)
	h := httpapi.NewHandlers(st, gate, cfg, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.Router(h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
