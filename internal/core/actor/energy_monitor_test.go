package actor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	adactor "github.com/Havanyani/ecocartapp-sub009/internal/adapter/actor"
	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/util/actorutil"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const testEnergyMonitorId = "AA:BB:CC:11:22:33"

// testStore is an in-memory Store for actor tests.
type testStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newTestStore() *testStore {
	return &testStore{data: map[string][]byte{}}
}

func (s *testStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, value...), true, nil
}

func (s *testStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte{}, value...)
	return nil
}

func (s *testStore) Close() error {
	return nil
}

func (s *testStore) seed(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte{}, value...)
}

func (s *testStore) snapshot(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	return value, ok
}

// eventCapture records everything published on the event stream.
type eventCapture struct {
	mu     sync.Mutex
	events []any
}

func newEventCapture(es *eventstream.EventStream) *eventCapture {
	capture := &eventCapture{}
	es.Subscribe(capture.collect)
	return capture
}

func (c *eventCapture) collect(event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *eventCapture) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func eventsOfType[T any](c *eventCapture) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, event := range c.events {
		if typed, ok := event.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

func u16be(value uint16) []byte {
	return []byte{byte(value >> 8), byte(value)}
}

func u32be(value uint32) []byte {
	return []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
}

// ask runs a request through a future and asserts the response type.
func ask[T any](t *testing.T, ctx *actor.RootContext, pid *actor.PID, request any) T {
	t.Helper()
	result, err := ctx.RequestFuture(pid, request, 10*time.Second).Result()
	if err != nil {
		t.Fatalf("request %T: %v", request, err)
	}
	response, ok := result.(T)
	if !ok {
		t.Fatalf("request %T: unexpected response type %T", request, result)
	}
	return response
}

func healthCheck(ctx *actor.RootContext, pid *actor.PID) (*domain.ActorHealthResponse, error) {
	resp, err := ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		return nil, err
	}
	hcr, ok := resp.(domain.ActorHealthResponse)
	if !ok {
		return nil, errors.New("unexpected response type")
	}
	return &hcr, nil
}

type monitorEnv struct {
	as      *actor.ActorSystem
	context *actor.RootContext
	central *ecoble.TestCentral
	store   *testStore
	events  *eventCapture
	monitor *actor.PID
}

func spawnMonitorEnv(t *testing.T, store *testStore) *monitorEnv {
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	central := ecoble.CreateTestCentral()
	es := &eventstream.EventStream{}
	events := newEventCapture(es)

	transportProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTransportActor(central, es, logger)
	})
	transportPID := as.Root.Spawn(transportProps)

	monitorProps := actor.PropsFromProducer(func() actor.Actor {
		return NewEnergyMonitorActor(transportPID, store, es, logger)
	})
	monitorPID := as.Root.Spawn(monitorProps)

	// wait for the persisted state load
	time.Sleep(200 * time.Millisecond)

	return &monitorEnv{
		as:      as,
		context: as.Root,
		central: central,
		store:   store,
		events:  events,
		monitor: monitorPID,
	}
}

func testEnergyMonitorDescriptor() ecoble.Descriptor {
	return ecoble.Descriptor{
		ID:           testEnergyMonitorId,
		Name:         "EcoEnergy Pro",
		ServiceUUIDs: []string{ecoble.SERVICE_UUID_ECO_ENERGY_PRO},
	}
}

func testEnergyMonitorValues() map[string][]byte {
	return map[string][]byte{
		ecoble.CHAR_UUID_POWER:           u16be(1250),
		ecoble.CHAR_UUID_VOLTAGE:         u16be(2301),
		ecoble.CHAR_UUID_CURRENT:         u16be(543),
		ecoble.CHAR_UUID_ENERGY:          u32be(12345),
		ecoble.CHAR_UUID_FREQUENCY:       {50},
		ecoble.CHAR_UUID_POWER_FACTOR:    {95},
		ecoble.CHAR_UUID_MONITOR_BATTERY: {90},
		ecoble.CHAR_UUID_APPLIANCE:       {6},
	}
}

func connectTestMonitor(t *testing.T, env *monitorEnv) {
	t.Helper()
	env.central.AddPeripheral(testEnergyMonitorDescriptor(), testEnergyMonitorValues())
	response := ask[domain.MonitorConnectResponse](t, env.context, env.monitor, domain.MonitorConnectRequest{
		Device: domain.DeviceFromDescriptor(testEnergyMonitorDescriptor(), domain.DEVICE_TYPE_ENERGY_MONITOR),
	})
	if !response.Accepted {
		t.Fatalf("connect rejected: %v", response.GetResponseError())
	}
}

func monitorReading(t *testing.T, env *monitorEnv, deviceId string) *domain.EnergyReading {
	t.Helper()
	return ask[domain.MonitorReadingResponse](t, env.context, env.monitor, domain.MonitorReadingRequest{DeviceId: deviceId}).Reading
}

func monitorSettings(t *testing.T, env *monitorEnv, deviceId string) *domain.EnergySettings {
	t.Helper()
	return ask[domain.MonitorSettingsResponse](t, env.context, env.monitor, domain.MonitorSettingsRequest{DeviceId: deviceId}).Settings
}

func monitorStats(t *testing.T, env *monitorEnv, deviceId string) *domain.EnergyStats {
	t.Helper()
	return ask[domain.MonitorStatsResponse](t, env.context, env.monitor, domain.MonitorStatsRequest{DeviceId: deviceId}).Stats
}

func TestEnergyMonitorConnectFlow(t *testing.T) {
	store := newTestStore()
	env := spawnMonitorEnv(t, store)
	defer env.as.Shutdown()

	connectTestMonitor(t, env)

	assert.Equal(t, []string{testEnergyMonitorId}, env.central.ConnectCalls(), "central connect calls")

	hcr, err := healthCheck(env.context, env.monitor)
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, hcr.Healthy, "actor should be healthy")
	assert.Equal(t, "idle", hcr.State, "actor should be back to idle")

	reading := monitorReading(t, env, testEnergyMonitorId)
	if assert.NotNil(t, reading, "reading after connect") {
		assert.Equal(t, 1250.0, reading.Power, "power")
		assert.InDelta(t, 230.1, reading.Voltage, 0.001, "voltage")
		assert.InDelta(t, 5.43, reading.Current, 0.001, "current")
		assert.InDelta(t, 12.345, reading.Energy, 0.0001, "energy")
		assert.Equal(t, 50.0, reading.Frequency, "frequency")
		assert.InDelta(t, 0.95, reading.PowerFactor, 0.001, "power factor")
		assert.Equal(t, uint8(90), reading.BatteryLevel, "battery")
		if assert.NotNil(t, reading.Appliance, "appliance") {
			assert.Equal(t, "kettle", *reading.Appliance, "appliance label")
		}
	}

	settings := monitorSettings(t, env, testEnergyMonitorId)
	if assert.NotNil(t, settings, "settings after connect") {
		assert.Equal(t, domain.DefaultEnergySettings(), *settings, "default settings")
	}
	assert.NotNil(t, monitorStats(t, env, testEnergyMonitorId), "stats after connect")

	connected := eventsOfType[domain.MonitorConnectedEvent](env.events)
	if assert.Len(t, connected, 1, "connected events") {
		assert.Equal(t, testEnergyMonitorId, connected[0].Id, "connected device id")
		assert.Equal(t, domain.CONNECTION_STATUS_CONNECTED, connected[0].Device.ConnectionStatus, "device status")
	}
	assert.NotEmpty(t, eventsOfType[domain.MonitorReadingUpdatedEvent](env.events), "reading updated events")
	assert.Len(t, eventsOfType[domain.MonitorSettingsChangedEvent](env.events), 1, "settings changed events")

	payload, ok := store.snapshot(domain.STORE_KEY_ENERGY_MONITOR)
	if assert.True(t, ok, "state persisted") {
		var persisted domain.EnergyMonitorState
		if err := json.Unmarshal(payload, &persisted); err != nil {
			t.Fatal(err)
		}
		assert.Contains(t, persisted.Readings, testEnergyMonitorId, "persisted reading")
		assert.Contains(t, persisted.Settings, testEnergyMonitorId, "persisted settings")
	}
}

func TestEnergyMonitorConnectRejectsUnsupportedDevice(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()

	binDevice := domain.DeviceFromDescriptor(ecoble.Descriptor{
		ID:           "F0:0D:00:00:00:01",
		Name:         "EcoBin Pro",
		ServiceUUIDs: []string{ecoble.SERVICE_UUID_ECO_BIN_PRO},
	}, domain.DEVICE_TYPE_ENERGY_MONITOR)

	response := ask[domain.MonitorConnectResponse](t, env.context, env.monitor, domain.MonitorConnectRequest{Device: binDevice})

	assert.False(t, response.Accepted, "bin device should be rejected")
	assert.Empty(t, env.central.ConnectCalls(), "no transport connect")
	assert.Empty(t, eventsOfType[domain.MonitorConnectedEvent](env.events), "no connected event")
}

func TestEnergyMonitorConnectTransportFailure(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()

	env.central.AddPeripheral(testEnergyMonitorDescriptor(), testEnergyMonitorValues())
	env.central.SetFailConnect(testEnergyMonitorId, true)

	response := ask[domain.MonitorConnectResponse](t, env.context, env.monitor, domain.MonitorConnectRequest{
		Device: domain.DeviceFromDescriptor(testEnergyMonitorDescriptor(), domain.DEVICE_TYPE_ENERGY_MONITOR),
	})

	assert.False(t, response.Accepted, "connect should fail")
	assert.Error(t, response.GetResponseError(), "connect error")
	assert.Nil(t, monitorReading(t, env, testEnergyMonitorId), "no reading for failed device")
	assert.Empty(t, eventsOfType[domain.MonitorConnectedEvent](env.events), "no connected event")
}

func TestEnergyMonitorHighUsageIsLevelTriggered(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)
	env.events.reset()

	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_POWER, u16be(4000))
	time.Sleep(200 * time.Millisecond)

	reading := monitorReading(t, env, testEnergyMonitorId)
	if assert.NotNil(t, reading, "reading") {
		assert.Equal(t, 4000.0, reading.Power, "power")
	}

	powerEvents := eventsOfType[domain.PowerChangedEvent](env.events)
	if assert.Len(t, powerEvents, 1, "power changed events") {
		assert.Equal(t, 4000.0, powerEvents[0].Power, "event power")
	}
	high := eventsOfType[domain.HighEnergyUsageEvent](env.events)
	if assert.Len(t, high, 1, "high usage events") {
		assert.Equal(t, 4000.0, high[0].Power, "alert power")
		assert.Equal(t, 3000.0, high[0].Threshold, "alert threshold")
	}

	// every sample above the threshold raises the alert again
	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_POWER, u16be(3500))
	time.Sleep(200 * time.Millisecond)

	assert.Len(t, eventsOfType[domain.HighEnergyUsageEvent](env.events), 2, "alert raised again")

	stats := monitorStats(t, env, testEnergyMonitorId)
	if assert.NotNil(t, stats, "stats") {
		assert.Equal(t, 4000.0, stats.PeakUsage, "peak usage")
		assert.Equal(t, 2, stats.PowerSamples, "power samples")
		assert.InDelta(t, 3750.0, stats.AveragePower, 0.001, "average power")
	}
}

func TestEnergyMonitorEnergyAccumulation(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)
	env.events.reset()

	// counter moves from 12.345 to 12.845 kWh
	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_ENERGY, u32be(12845))
	time.Sleep(200 * time.Millisecond)

	energyEvents := eventsOfType[domain.EnergyChangedEvent](env.events)
	if assert.Len(t, energyEvents, 1, "energy changed events") {
		assert.InDelta(t, 12.845, energyEvents[0].Energy, 0.0001, "event energy")
	}

	stats := monitorStats(t, env, testEnergyMonitorId)
	if assert.NotNil(t, stats, "stats") {
		assert.InDelta(t, 0.5, stats.TotalEnergyToday, 0.0001, "energy today")
		assert.InDelta(t, 0.075, stats.TotalEnergyCost, 0.0001, "energy cost")
	}

	// a counter reset must not produce negative usage
	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_ENERGY, u32be(0))
	time.Sleep(200 * time.Millisecond)

	stats = monitorStats(t, env, testEnergyMonitorId)
	if assert.NotNil(t, stats, "stats") {
		assert.InDelta(t, 0.5, stats.TotalEnergyToday, 0.0001, "energy today unchanged")
	}
}

func TestEnergyMonitorApplianceDetection(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)
	env.events.reset()

	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_APPLIANCE, []byte{2})
	time.Sleep(200 * time.Millisecond)

	reading := monitorReading(t, env, testEnergyMonitorId)
	if assert.NotNil(t, reading, "reading") && assert.NotNil(t, reading.Appliance, "appliance") {
		assert.Equal(t, "washing machine", *reading.Appliance, "appliance label")
	}
	stats := monitorStats(t, env, testEnergyMonitorId)
	if assert.NotNil(t, stats, "stats") {
		assert.Equal(t, 1, stats.DetectedAppliances["washing machine"], "detection count")
	}
	assert.Len(t, eventsOfType[domain.MonitorReadingUpdatedEvent](env.events), 1, "snapshot event")
}

func TestEnergyMonitorUpdateSettings(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)
	env.events.reset()

	threshold := 2500.0
	interval := 30
	response := ask[domain.MonitorUpdateSettingsResponse](t, env.context, env.monitor, domain.MonitorUpdateSettingsRequest{
		DeviceId: testEnergyMonitorId,
		Patch:    domain.EnergySettingsPatch{HighUsageThresholdWatt: &threshold, ReportingIntervalSeconds: &interval},
	})

	assert.True(t, response.Ok, "update should succeed")
	if assert.NotNil(t, response.Settings, "response settings") {
		assert.Equal(t, 2500.0, response.Settings.HighUsageThresholdWatt, "merged threshold")
		assert.Equal(t, 30, response.Settings.ReportingIntervalSeconds, "merged interval")
	}

	writes := env.central.Writes()
	if assert.NotEmpty(t, writes, "device write") {
		last := writes[len(writes)-1]
		assert.Equal(t, ecoble.CHAR_UUID_ENERGY_SETTINGS, last.CharacteristicUUID, "settings characteristic")
		record, err := ecoble.DecodeEnergySettings(last.Data)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, uint16(2500), record.HighUsageThresholdWatt, "encoded threshold")
		assert.Equal(t, uint16(30), record.ReportingIntervalSeconds, "encoded interval")
	}

	assert.Len(t, eventsOfType[domain.MonitorSettingsChangedEvent](env.events), 1, "settings changed event")

	settings := monitorSettings(t, env, testEnergyMonitorId)
	if assert.NotNil(t, settings, "settings") {
		assert.Equal(t, 2500.0, settings.HighUsageThresholdWatt, "stored threshold")
	}
}

func TestEnergyMonitorUpdateSettingsWriteFailure(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)

	env.central.SetFailWrite(true)
	threshold := 1000.0
	response := ask[domain.MonitorUpdateSettingsResponse](t, env.context, env.monitor, domain.MonitorUpdateSettingsRequest{
		DeviceId: testEnergyMonitorId,
		Patch:    domain.EnergySettingsPatch{HighUsageThresholdWatt: &threshold},
	})

	assert.False(t, response.Ok, "update should fail")
	settings := monitorSettings(t, env, testEnergyMonitorId)
	if assert.NotNil(t, settings, "settings") {
		assert.Equal(t, 3000.0, settings.HighUsageThresholdWatt, "settings unchanged")
	}
}

func TestEnergyMonitorResetStats(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)

	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_POWER, u16be(4000))
	time.Sleep(200 * time.Millisecond)
	env.events.reset()

	response := ask[domain.MonitorResetStatsResponse](t, env.context, env.monitor, domain.MonitorResetStatsRequest{DeviceId: testEnergyMonitorId})
	assert.True(t, response.Ok, "reset should succeed")
	assert.Len(t, eventsOfType[domain.EnergyStatsResetEvent](env.events), 1, "reset event")

	stats := monitorStats(t, env, testEnergyMonitorId)
	if assert.NotNil(t, stats, "stats") {
		assert.Equal(t, 0.0, stats.PeakUsage, "peak cleared")
		assert.Equal(t, 0, stats.PowerSamples, "samples cleared")
		assert.Empty(t, stats.UsageHistory, "history cleared")
	}
}

func TestEnergyMonitorDisconnectKeepsState(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)
	env.events.reset()

	response := ask[domain.MonitorDisconnectResponse](t, env.context, env.monitor, domain.MonitorDisconnectRequest{DeviceId: testEnergyMonitorId})
	assert.True(t, response.Ok, "disconnect should succeed")
	assert.Equal(t, []string{testEnergyMonitorId}, env.central.DisconnectCalls(), "central disconnect calls")

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, eventsOfType[domain.MonitorDisconnectedEvent](env.events), 1, "disconnected event")

	reading := monitorReading(t, env, testEnergyMonitorId)
	if assert.NotNil(t, reading, "reading survives disconnect") {
		assert.Equal(t, 1250.0, reading.Power, "retained power")
	}

	// data from a disconnected but known device is still applied
	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_POWER, u16be(600))
	time.Sleep(200 * time.Millisecond)
	reading = monitorReading(t, env, testEnergyMonitorId)
	if assert.NotNil(t, reading, "reading") {
		assert.Equal(t, 600.0, reading.Power, "late data applied")
	}
}

func TestEnergyMonitorUnknownDeviceQueries(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()

	unknownId := "11:11:11:11:11:11"
	assert.Nil(t, monitorReading(t, env, unknownId), "reading")
	assert.Nil(t, monitorSettings(t, env, unknownId), "settings")
	assert.Nil(t, monitorStats(t, env, unknownId), "stats")

	disconnect := ask[domain.MonitorDisconnectResponse](t, env.context, env.monitor, domain.MonitorDisconnectRequest{DeviceId: unknownId})
	assert.False(t, disconnect.Ok, "disconnect unknown device")

	threshold := 100.0
	update := ask[domain.MonitorUpdateSettingsResponse](t, env.context, env.monitor, domain.MonitorUpdateSettingsRequest{
		DeviceId: unknownId,
		Patch:    domain.EnergySettingsPatch{HighUsageThresholdWatt: &threshold},
	})
	assert.False(t, update.Ok, "update unknown device")

	reset := ask[domain.MonitorResetStatsResponse](t, env.context, env.monitor, domain.MonitorResetStatsRequest{DeviceId: unknownId})
	assert.False(t, reset.Ok, "reset unknown device")

	cost := ask[domain.MonitorEnergyCostResponse](t, env.context, env.monitor, domain.MonitorEnergyCostRequest{DeviceId: unknownId, KWh: 10})
	assert.Equal(t, 0.0, cost.Cost, "cost without settings")

	recommendations := ask[domain.MonitorRecommendationsResponse](t, env.context, env.monitor, domain.MonitorRecommendationsRequest{DeviceId: unknownId})
	assert.Empty(t, recommendations.Recommendations, "recommendations without reading")
}

func TestEnergyMonitorStateReload(t *testing.T) {
	seeded := domain.NewEnergyMonitorState()
	seeded.Readings[testEnergyMonitorId] = domain.EnergyReading{Power: 777, Timestamp: time.Now()}
	seeded.Settings[testEnergyMonitorId] = domain.DefaultEnergySettings()
	payload, err := json.Marshal(seeded)
	if err != nil {
		t.Fatal(err)
	}

	store := newTestStore()
	store.seed(domain.STORE_KEY_ENERGY_MONITOR, payload)
	env := spawnMonitorEnv(t, store)
	defer env.as.Shutdown()

	reading := monitorReading(t, env, testEnergyMonitorId)
	if assert.NotNil(t, reading, "reading from store") {
		assert.Equal(t, 777.0, reading.Power, "restored power")
	}

	// the device is known from the restored state, data applies without a connect
	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_POWER, u16be(800))
	time.Sleep(200 * time.Millisecond)
	reading = monitorReading(t, env, testEnergyMonitorId)
	if assert.NotNil(t, reading, "reading") {
		assert.Equal(t, 800.0, reading.Power, "data applied to restored device")
	}
}

func TestEnergyMonitorDayRollover(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)

	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_ENERGY, u32be(12845))
	time.Sleep(200 * time.Millisecond)

	env.context.Send(env.monitor, domain.EnergyDayRolloverTick{})
	time.Sleep(200 * time.Millisecond)

	stats := monitorStats(t, env, testEnergyMonitorId)
	if assert.NotNil(t, stats, "stats") {
		assert.Equal(t, 0.0, stats.TotalEnergyToday, "today zeroed")
		assert.Equal(t, 0.0, stats.TotalEnergyCost, "cost zeroed")
		total := 0.0
		for _, kwh := range stats.DailyUsage {
			total += kwh
		}
		assert.InDelta(t, 0.5, total, 0.0001, "daily bucket keeps the finished day")
	}
}

func TestEnergyMonitorCostAndRecommendations(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)

	cost := ask[domain.MonitorEnergyCostResponse](t, env.context, env.monitor, domain.MonitorEnergyCostRequest{DeviceId: testEnergyMonitorId, KWh: 10})
	assert.InDelta(t, 1.5, cost.Cost, 0.0001, "cost at the default rate")

	env.central.EmitData(testEnergyMonitorId, ecoble.SERVICE_UUID_ECO_ENERGY_PRO, ecoble.CHAR_UUID_POWER, u16be(4000))
	time.Sleep(200 * time.Millisecond)

	recommendations := ask[domain.MonitorRecommendationsResponse](t, env.context, env.monitor, domain.MonitorRecommendationsRequest{DeviceId: testEnergyMonitorId})
	assert.Len(t, recommendations.Recommendations, 2, "advisories above both thresholds")
}

func TestEnergyMonitorTransportEventHandling(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()

	// connected events for unknown devices are ignored
	env.central.AddPeripheral(testEnergyMonitorDescriptor(), testEnergyMonitorValues())
	env.central.EmitConnected(testEnergyMonitorDescriptor())
	time.Sleep(200 * time.Millisecond)
	assert.Nil(t, monitorReading(t, env, testEnergyMonitorId), "unknown device not adopted")
	assert.Empty(t, eventsOfType[domain.MonitorConnectedEvent](env.events), "no connected event")

	// after an explicit connect and a transport drop, a reconnect event brings it back
	connectTestMonitor(t, env)
	env.central.EmitDisconnected(testEnergyMonitorId)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, eventsOfType[domain.MonitorDisconnectedEvent](env.events), 1, "drop event")

	env.events.reset()
	env.central.EmitConnected(testEnergyMonitorDescriptor())
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, eventsOfType[domain.MonitorConnectedEvent](env.events), 1, "reconnect event")
}

func TestEnergyMonitorPeriodicRefresh(t *testing.T) {
	env := spawnMonitorEnv(t, newTestStore())
	defer env.as.Shutdown()
	connectTestMonitor(t, env)

	// drop the reporting interval to one second, then change the device value
	interval := 1
	response := ask[domain.MonitorUpdateSettingsResponse](t, env.context, env.monitor, domain.MonitorUpdateSettingsRequest{
		DeviceId: testEnergyMonitorId,
		Patch:    domain.EnergySettingsPatch{ReportingIntervalSeconds: &interval},
	})
	assert.True(t, response.Ok, "interval update")

	env.central.SetValue(testEnergyMonitorId, ecoble.CHAR_UUID_POWER, u16be(4000))
	time.Sleep(1500 * time.Millisecond)

	reading := monitorReading(t, env, testEnergyMonitorId)
	if assert.NotNil(t, reading, "reading") {
		assert.Equal(t, 4000.0, reading.Power, "refresh picked up the new value")
	}
}
