package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/Havanyani/ecocartapp-sub009/internal/adapter/actor"
	"github.com/Havanyani/ecocartapp-sub009/internal/adapter/bluetooth"
	"github.com/Havanyani/ecocartapp-sub009/internal/adapter/storage"
	"github.com/Havanyani/ecocartapp-sub009/internal/config"
	"github.com/Havanyani/ecocartapp-sub009/internal/core/actor"
	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/server"
	"github.com/Havanyani/ecocartapp-sub009/internal/util/actorutil"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init persistence store
	store, err := storage.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, store, transportActorProvider(cfg, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	// schedule the midnight stats rollover
	sched := quartz.NewStdScheduler()
	sched.Start(context.Background())
	rolloverTrigger, err := quartz.NewCronTrigger("0 0 0 * * *")
	if err != nil {
		panic(err)
	}
	rolloverJob := job.NewFunctionJob(func(_ context.Context) (int, error) {
		ctx.Send(pid, domain.EnergyDayRolloverTick{})
		return 0, nil
	})
	err = sched.ScheduleJob(quartz.NewJobDetail(rolloverJob, quartz.NewJobKey("energy_day_rollover")), rolloverTrigger)
	if err != nil {
		panic(err)
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	sched.Stop()
	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => ECOCART_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ECOCART_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("ecocart")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check required params
	if cfg.MQTT.Host == "" {
		return nil, errors.New("config param mqtt.host is required")
	}
	if cfg.Store.Path == "" {
		return nil, errors.New("config param store.path is required")
	}

	return &cfg, nil
}

// transportActorProvider builds the BLE central once so supervisor restarts
// of the transport child reuse the same radio handle.
func transportActorProvider(cfg *config.Config, logger *zap.Logger) actor.TransportActorProvider {
	var central ecoble.Central
	if cfg.Bluetooth.Enabled {
		central = bluetooth.NewBluetoothCentral(logger)
	} else {
		// simulated central for development without a radio
		central = ecoble.CreateTestCentral()
	}
	return func(es *eventstream.EventStream) *adactor.TransportActor {
		return adactor.NewTransportActor(central, es, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("mqtt.host", "")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "ecocart")
	viper.SetDefault("mqtt.ha_discovery_enabled", true)
	viper.SetDefault("bluetooth.enabled", true)
	viper.SetDefault("store.path", "ecocart.db")
	viper.SetDefault("http_log", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
