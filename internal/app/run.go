package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"powermeter-server/internal/config"
	"powermeter-server/internal/db"
	"powermeter-server/internal/httpapi"
	"powermeter-server/internal/kafka"
	"powermeter-server/internal/migrate"
	"powermeter-server/internal/modules/measurements"
	"powermeter-server/internal/modules/measurements/views"
	"powermeter-server/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"powerAlertThreshold", cfg.PowerAlertThreshold,
		"dbDriver", cfg.DBDriver,
		"sqlitePath", cfg.SQLitePath,
		"dbMaxOpenConns", cfg.DBMaxOpenConns,
		"dbMaxIdleConns", cfg.DBMaxIdleConns,
		"dbConnMaxLifetime", cfg.DBConnMaxLifetime,
		"kafkaBrokers", cfg.KafkaBrokers,
		"kafkaTopic", cfg.KafkaTopic,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
	)

	dbConn, dialect, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn, dialect); err != nil {
		return err
	}
	if err := dbConn.PingContext(ctx); err != nil {
		return err
	}
	slog.Info("database connection successful", "dialect", dialect)

	publisher, err := kafka.Connect(ctx, cfg, slog.Default())
	if err != nil {
		slog.Warn("kafka unavailable (continuing without republish)", "error", err)
	}
	defer publisher.Close()

	if err := views.LoadTemplates(); err != nil {
		return err
	}

	mux := httpapi.NewMux(dbConn, cfg.StaticDir)
	svc := measurements.RegisterFeature(mux, dbConn, dialect, publisher, cfg.PowerAlertThreshold)

	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled() {
		subscriber = mqtt.NewSubscriber(cfg, slog.Default())
		// Handler goes in before Connect: the broker may deliver right after CONNACK.
		svc.Register(subscriber)

		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		slog.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
