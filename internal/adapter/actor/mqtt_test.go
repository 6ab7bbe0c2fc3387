package actor

import (
	"testing"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/mqtt"
	"github.com/Havanyani/ecocartapp-sub009/internal/util"
	"github.com/Havanyani/ecocartapp-sub009/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	time.Sleep(2 * time.Second)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.NotNil(t, resp)

	es.Publish(domain.PowerChangedEvent{
		MonitorEventMixIn: domain.MonitorEventMixIn{Id: "AA:BB:CC:DD:EE:FF"},
		Power:             245,
	})
	es.Publish(domain.BinFillLevelChangedEvent{
		BinEventMixIn: domain.BinEventMixIn{Id: "11:22:33:44:55:66"},
		FillLevel:     65,
	})

	time.Sleep(1 * time.Second)

	context.Stop(pid)

	time.Sleep(1 * time.Second)

	as.Shutdown()
}

func newMappingMQTTActor() *MQTTActor {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	act := NewTestMQTTActor(&cfg, &eventstream.EventStream{}, logger)
	act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)
	return act
}

func TestEventToMQTTAvailability(t *testing.T) {

	assert := assert.New(t)

	state := newMappingMQTTActor()

	msgs := state.event2MQTTMessages(domain.MonitorConnectedEvent{
		MonitorEventMixIn: domain.MonitorEventMixIn{Id: "AA:BB:CC:DD:EE:FF"},
	})
	if assert.Len(msgs, 1, "connected messages") {
		assert.Equal("ecocart/monitor/AA:BB:CC:DD:EE:FF/availability", msgs[0].topic, "availability topic")
		assert.Equal("online", msgs[0].message, "availability payload")
		assert.True(msgs[0].retain, "availability retained")
	}

	msgs = state.event2MQTTMessages(domain.BinDisconnectedEvent{
		BinEventMixIn: domain.BinEventMixIn{Id: "11:22:33:44:55:66"},
	})
	if assert.Len(msgs, 1, "disconnected messages") {
		assert.Equal("ecocart/bin/11:22:33:44:55:66/availability", msgs[0].topic, "availability topic")
		assert.Equal("offline", msgs[0].message, "availability payload")
		assert.True(msgs[0].retain, "availability retained")
	}
}

func TestEventToMQTTTelemetry(t *testing.T) {

	assert := assert.New(t)

	state := newMappingMQTTActor()

	msgs := state.event2MQTTMessages(domain.PowerChangedEvent{
		MonitorEventMixIn: domain.MonitorEventMixIn{Id: "AA:BB:CC:DD:EE:FF"},
		Power:             1250.57,
	})
	if assert.Len(msgs, 1, "power messages") {
		assert.Equal("ecocart/monitor/AA:BB:CC:DD:EE:FF/power", msgs[0].topic, "power topic")
		assert.Equal("1250.6", msgs[0].message, "power payload")
		assert.False(msgs[0].retain, "telemetry not retained")
	}

	msgs = state.event2MQTTMessages(domain.BinWeightChangedEvent{
		BinEventMixIn: domain.BinEventMixIn{Id: "11:22:33:44:55:66"},
		Weight:        3420.25,
	})
	if assert.Len(msgs, 1, "weight messages") {
		assert.Equal("ecocart/bin/11:22:33:44:55:66/weight", msgs[0].topic, "weight topic")
		assert.Equal("3420.2", msgs[0].message, "weight payload")
	}
}

func TestEventToMQTTReadingSnapshot(t *testing.T) {

	assert := assert.New(t)

	state := newMappingMQTTActor()

	msgs := state.event2MQTTMessages(domain.MonitorReadingUpdatedEvent{
		MonitorEventMixIn: domain.MonitorEventMixIn{Id: "AA:BB:CC:DD:EE:FF"},
		Reading: domain.EnergyReading{
			Power:        1500,
			Voltage:      231.2,
			Current:      6.49,
			Energy:       12.345,
			Frequency:    50.02,
			PowerFactor:  0.95,
			BatteryLevel: 87,
		},
	})
	if assert.Len(msgs, 8, "monitor snapshot messages") {
		byTopic := map[string]string{}
		for _, m := range msgs {
			byTopic[m.topic] = m.message
		}
		assert.Equal("1500.0", byTopic["ecocart/monitor/AA:BB:CC:DD:EE:FF/power"], "power payload")
		assert.Equal("231.2", byTopic["ecocart/monitor/AA:BB:CC:DD:EE:FF/voltage"], "voltage payload")
		assert.Equal("6.49", byTopic["ecocart/monitor/AA:BB:CC:DD:EE:FF/current"], "current payload")
		assert.Equal("12.345", byTopic["ecocart/monitor/AA:BB:CC:DD:EE:FF/energy"], "energy payload")
		assert.Equal("50.02", byTopic["ecocart/monitor/AA:BB:CC:DD:EE:FF/frequency"], "frequency payload")
		assert.Equal("0.95", byTopic["ecocart/monitor/AA:BB:CC:DD:EE:FF/power_factor"], "power factor payload")
		assert.Equal("87", byTopic["ecocart/monitor/AA:BB:CC:DD:EE:FF/battery_level"], "battery payload")
		assert.Equal("none", byTopic["ecocart/monitor/AA:BB:CC:DD:EE:FF/appliance"], "appliance payload")
	}

	material := "plastic"
	msgs = state.event2MQTTMessages(domain.BinReadingUpdatedEvent{
		BinEventMixIn: domain.BinEventMixIn{Id: "11:22:33:44:55:66"},
		Reading: domain.BinReading{
			Weight:       980.5,
			FillLevel:    42,
			BatteryLevel: 64,
			IsLidOpen:    true,
			MaterialType: &material,
		},
	})
	if assert.Len(msgs, 5, "bin snapshot messages") {
		byTopic := map[string]string{}
		for _, m := range msgs {
			byTopic[m.topic] = m.message
		}
		assert.Equal("980.5", byTopic["ecocart/bin/11:22:33:44:55:66/weight"], "weight payload")
		assert.Equal("42", byTopic["ecocart/bin/11:22:33:44:55:66/fill_level"], "fill payload")
		assert.Equal("64", byTopic["ecocart/bin/11:22:33:44:55:66/battery_level"], "battery payload")
		assert.Equal("open", byTopic["ecocart/bin/11:22:33:44:55:66/lid_status"], "lid payload")
		assert.Equal("plastic", byTopic["ecocart/bin/11:22:33:44:55:66/material_type"], "material payload")
	}
}

func TestEventToMQTTEntityStates(t *testing.T) {

	assert := assert.New(t)

	state := newMappingMQTTActor()

	settings := domain.DefaultEnergySettings()
	settings.EnableNotifications = false
	settings.HighUsageThresholdWatt = 2500

	msgs := state.event2MQTTMessages(domain.MonitorSettingsChangedEvent{
		MonitorEventMixIn: domain.MonitorEventMixIn{Id: "AA:BB:CC:DD:EE:FF"},
		Settings:          settings,
	})
	if assert.Len(msgs, 2, "monitor entity messages") {
		assert.Equal("ecocart/monitor/AA:BB:CC:DD:EE:FF/notifications/state", msgs[0].topic, "switch topic")
		assert.Equal("off", msgs[0].message, "switch payload")
		assert.True(msgs[0].retain, "switch retained")
		assert.Equal("ecocart/monitor/AA:BB:CC:DD:EE:FF/high_usage_threshold/state", msgs[1].topic, "number topic")
		assert.Equal("2500", msgs[1].message, "number payload")
		assert.True(msgs[1].retain, "number retained")
	}

	msgs = state.event2MQTTMessages(domain.BinSettingsChangedEvent{
		BinEventMixIn: domain.BinEventMixIn{Id: "11:22:33:44:55:66"},
		Settings:      domain.DefaultBinSettings(),
	})
	if assert.Len(msgs, 2, "bin entity messages") {
		assert.Equal("ecocart/bin/11:22:33:44:55:66/notify_when_full/state", msgs[0].topic, "switch topic")
		assert.Equal("on", msgs[0].message, "switch payload")
		assert.Equal("ecocart/bin/11:22:33:44:55:66/full_threshold/state", msgs[1].topic, "number topic")
		assert.Equal("80", msgs[1].message, "number payload")
	}
}

func TestEventToMQTTEventTopics(t *testing.T) {

	assert := assert.New(t)

	state := newMappingMQTTActor()

	msgs := state.event2MQTTMessages(domain.HighEnergyUsageEvent{
		MonitorEventMixIn: domain.MonitorEventMixIn{Id: "AA:BB:CC:DD:EE:FF"},
		Power:             2000,
		Threshold:         1500,
	})
	if assert.Len(msgs, 1, "high usage messages") {
		assert.Equal("ecocart/monitor/AA:BB:CC:DD:EE:FF/event/high_usage", msgs[0].topic, "event topic")
		assert.JSONEq(`{"deviceId":"AA:BB:CC:DD:EE:FF","power":2000,"threshold":1500}`, msgs[0].message, "event payload")
		assert.False(msgs[0].retain, "events not retained")
	}

	msgs = state.event2MQTTMessages(domain.BinFullEvent{
		BinEventMixIn: domain.BinEventMixIn{Id: "11:22:33:44:55:66"},
		FillLevel:     85,
		Threshold:     80,
	})
	if assert.Len(msgs, 1, "bin full messages") {
		assert.Equal("ecocart/bin/11:22:33:44:55:66/event/full", msgs[0].topic, "event topic")
		assert.JSONEq(`{"deviceId":"11:22:33:44:55:66","fillLevel":85,"threshold":80}`, msgs[0].message, "event payload")
	}

	msgs = state.event2MQTTMessages(domain.BinEmptiedEvent{
		BinEventMixIn: domain.BinEventMixIn{Id: "11:22:33:44:55:66"},
	})
	if assert.Len(msgs, 1, "emptied messages") {
		assert.Equal("ecocart/bin/11:22:33:44:55:66/event/emptied", msgs[0].topic, "event topic")
		assert.JSONEq(`{"deviceId":"11:22:33:44:55:66"}`, msgs[0].message, "event payload")
	}
}

func TestEventToMQTTIgnoresTransportEvents(t *testing.T) {

	assert := assert.New(t)

	state := newMappingMQTTActor()

	assert.Nil(state.event2MQTTMessages(domain.TransportDataReceived{DeviceId: "AA:BB:CC:DD:EE:FF"}), "transport data ignored")
	assert.Nil(state.event2MQTTMessages(domain.TransportDeviceConnected{}), "transport connect ignored")
}
