package actor

import (
	"testing"
	"time"

	adactor "github.com/Havanyani/ecocartapp-sub009/internal/adapter/actor"
	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/mqtt"
	"github.com/Havanyani/ecocartapp-sub009/internal/util"
	"github.com/Havanyani/ecocartapp-sub009/internal/util/actorutil"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type masterEnv struct {
	as      *actor.ActorSystem
	context *actor.RootContext
	central *ecoble.TestCentral
	store   *testStore
	master  *actor.PID
}

func spawnMasterEnv(t *testing.T, store *testStore) *masterEnv {
	t.Helper()

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	central := ecoble.CreateTestCentral()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, store, func(es *eventstream.EventStream) *adactor.TransportActor {
			return adactor.NewTransportActor(central, es, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Fatal(err)
	}

	// wait for the children to spawn and load their persisted state
	time.Sleep(500 * time.Millisecond)

	return &masterEnv{
		as:      as,
		context: as.Root,
		central: central,
		store:   store,
		master:  pid,
	}
}

func TestMasterActorHealthCheck(t *testing.T) {
	env := spawnMasterEnv(t, newTestStore())
	defer env.as.Shutdown()

	resp := ask[domain.ActorHealthResponse](t, env.context, env.master, domain.ActorHealthRequest{})
	assert.Equal(t, domain.ACTOR_ID_MASTER, resp.Id, "master id")
	assert.True(t, resp.Healthy, "healthy is true")

	env.context.Stop(env.master)
}

func TestMasterActorForwardsFamilyRequests(t *testing.T) {
	env := spawnMasterEnv(t, newTestStore())
	defer env.as.Shutdown()

	env.central.AddPeripheral(testEnergyMonitorDescriptor(), testEnergyMonitorValues())
	env.central.AddPeripheral(testSmartBinDescriptor(), testSmartBinValues())

	monitorConnect := ask[domain.MonitorConnectResponse](t, env.context, env.master, domain.MonitorConnectRequest{
		Device: domain.DeviceFromDescriptor(testEnergyMonitorDescriptor(), domain.DEVICE_TYPE_ENERGY_MONITOR),
	})
	assert.True(t, monitorConnect.Accepted, "monitor connect through master")

	binConnect := ask[domain.BinConnectResponse](t, env.context, env.master, domain.BinConnectRequest{
		Device: domain.DeviceFromDescriptor(testSmartBinDescriptor(), domain.DEVICE_TYPE_SMART_BIN),
	})
	assert.True(t, binConnect.Accepted, "bin connect through master")

	reading := ask[domain.MonitorReadingResponse](t, env.context, env.master, domain.MonitorReadingRequest{DeviceId: testEnergyMonitorId}).Reading
	if assert.NotNil(t, reading, "monitor reading through master") {
		assert.Equal(t, 1250.0, reading.Power, "power")
	}

	binReading := ask[domain.BinReadingResponse](t, env.context, env.master, domain.BinReadingRequest{DeviceId: testSmartBinId}).Reading
	if assert.NotNil(t, binReading, "bin reading through master") {
		assert.Equal(t, 500.0, binReading.Weight, "weight")
	}
}

func TestMasterActorRoutesParsedCommands(t *testing.T) {
	env := spawnMasterEnv(t, newTestStore())
	defer env.as.Shutdown()

	env.central.AddPeripheral(testEnergyMonitorDescriptor(), testEnergyMonitorValues())
	env.central.AddPeripheral(testSmartBinDescriptor(), testSmartBinValues())

	monitorConnect := ask[domain.MonitorConnectResponse](t, env.context, env.master, domain.MonitorConnectRequest{
		Device: domain.DeviceFromDescriptor(testEnergyMonitorDescriptor(), domain.DEVICE_TYPE_ENERGY_MONITOR),
	})
	assert.True(t, monitorConnect.Accepted, "monitor connect through master")

	binConnect := ask[domain.BinConnectResponse](t, env.context, env.master, domain.BinConnectRequest{
		Device: domain.DeviceFromDescriptor(testSmartBinDescriptor(), domain.DEVICE_TYPE_SMART_BIN),
	})
	assert.True(t, binConnect.Accepted, "bin connect through master")

	// bin command parsed from an MQTT topic
	env.context.Send(env.master, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: testSmartBinId,
		Command:  mqtt.COMMAND_EMPTIED,
	}})
	time.Sleep(200 * time.Millisecond)

	stats := ask[domain.BinStatsResponse](t, env.context, env.master, domain.BinStatsRequest{DeviceId: testSmartBinId}).Stats
	if assert.NotNil(t, stats, "bin stats through master") {
		assert.Equal(t, 1, stats.EmptyCount, "empty count after MQTT emptied command")
	}

	// monitor number entity command parsed from an MQTT topic
	env.context.Send(env.master, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: testEnergyMonitorId,
		Command:  mqtt.COMMAND_NUMBER,
		Entity:   domain.INPUT_NUMBER_ID_HIGH_USAGE_THRESHOLD,
		Payload:  "2500",
	}})
	time.Sleep(200 * time.Millisecond)

	settings := ask[domain.MonitorSettingsResponse](t, env.context, env.master, domain.MonitorSettingsRequest{DeviceId: testEnergyMonitorId}).Settings
	if assert.NotNil(t, settings, "monitor settings through master") {
		assert.Equal(t, 2500.0, settings.HighUsageThresholdWatt, "threshold after MQTT number command")
	}

	// unroutable commands are dropped
	env.context.Send(env.master, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: testEnergyMonitorId,
		Command:  "unknown",
	}})
	time.Sleep(100 * time.Millisecond)

	hcr, err := healthCheck(env.context, env.master)
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, hcr.Healthy, "master still healthy after unknown command")
}

func TestMasterActorRoutesDayRollover(t *testing.T) {
	env := spawnMasterEnv(t, newTestStore())
	defer env.as.Shutdown()

	env.central.AddPeripheral(testEnergyMonitorDescriptor(), testEnergyMonitorValues())
	monitorConnect := ask[domain.MonitorConnectResponse](t, env.context, env.master, domain.MonitorConnectRequest{
		Device: domain.DeviceFromDescriptor(testEnergyMonitorDescriptor(), domain.DEVICE_TYPE_ENERGY_MONITOR),
	})
	assert.True(t, monitorConnect.Accepted, "monitor connect through master")

	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_ENERGY, u32be(12845))
	time.Sleep(200 * time.Millisecond)

	stats := ask[domain.MonitorStatsResponse](t, env.context, env.master, domain.MonitorStatsRequest{DeviceId: testEnergyMonitorId}).Stats
	if assert.NotNil(t, stats, "stats before rollover") {
		assert.InDelta(t, 0.5, stats.TotalEnergyToday, 0.0001, "energy today")
	}

	// scheduler tick is routed like any other monitor request
	env.context.Send(env.master, domain.EnergyDayRolloverTick{})
	time.Sleep(200 * time.Millisecond)

	stats = ask[domain.MonitorStatsResponse](t, env.context, env.master, domain.MonitorStatsRequest{DeviceId: testEnergyMonitorId}).Stats
	if assert.NotNil(t, stats, "stats after rollover") {
		assert.Equal(t, 0.0, stats.TotalEnergyToday, "today zeroed")
	}
}
