package actorutil

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/mqtt"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a command topic match to the adapter
// request it stands for. Unroutable commands map to nil, not an error.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	switch cmd.Command {
	case mqtt.COMMAND_SETTINGS:
		return parsedSettingsToCommand(cmd)
	case mqtt.COMMAND_RESET_STATS:
		return domain.MonitorResetStatsRequest{DeviceId: cmd.DeviceId}, nil
	case mqtt.COMMAND_EMPTIED:
		return domain.BinEmptiedRequest{DeviceId: cmd.DeviceId}, nil
	case mqtt.COMMAND_CALIBRATE:
		return domain.BinCalibrateRequest{DeviceId: cmd.DeviceId}, nil
	case mqtt.COMMAND_SWITCH:
		return parsedSwitchToCommand(cmd)
	case mqtt.COMMAND_NUMBER:
		return parsedNumberToCommand(cmd)
	}
	return nil, nil
}

func parsedSettingsToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	switch cmd.Family {
	case ecoble.FAMILY_MONITOR:
		var patch domain.EnergySettingsPatch
		if err := json.Unmarshal([]byte(cmd.Payload), &patch); err != nil {
			return nil, err
		}
		return domain.MonitorUpdateSettingsRequest{
			DeviceId: cmd.DeviceId,
			Patch:    patch,
		}, nil
	case ecoble.FAMILY_BIN:
		var patch domain.BinSettingsPatch
		if err := json.Unmarshal([]byte(cmd.Payload), &patch); err != nil {
			return nil, err
		}
		return domain.BinUpdateSettingsRequest{
			DeviceId: cmd.DeviceId,
			Patch:    patch,
		}, nil
	}
	return nil, nil
}

func parsedSwitchToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	enable := cmd.Payload == mqtt.MQTT_PAYLOAD_ON
	switch cmd.Entity {
	case domain.SWITCH_ID_NOTIFICATIONS:
		return domain.MonitorUpdateSettingsRequest{
			DeviceId: cmd.DeviceId,
			Patch:    domain.EnergySettingsPatch{EnableNotifications: &enable},
		}, nil
	case domain.SWITCH_ID_NOTIFY_WHEN_FULL:
		return domain.BinUpdateSettingsRequest{
			DeviceId: cmd.DeviceId,
			Patch:    domain.BinSettingsPatch{NotifyWhenFull: &enable},
		}, nil
	}
	return nil, nil
}

func parsedNumberToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	switch cmd.Entity {
	case domain.INPUT_NUMBER_ID_HIGH_USAGE_THRESHOLD:
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil || value < 0 {
			return nil, err
		}
		return domain.MonitorUpdateSettingsRequest{
			DeviceId: cmd.DeviceId,
			Patch:    domain.EnergySettingsPatch{HighUsageThresholdWatt: &value},
		}, nil
	case domain.INPUT_NUMBER_ID_FULL_THRESHOLD:
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil || value < 0 || value > 100 {
			return nil, err
		}
		threshold := int(math.Round(value))
		return domain.BinUpdateSettingsRequest{
			DeviceId: cmd.DeviceId,
			Patch:    domain.BinSettingsPatch{FullThresholdPercent: &threshold},
		}, nil
	}
	return nil, nil
}
