package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/config"
	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/mqtt"
	"github.com/Havanyani/ecocartapp-sub009/internal/util/actorutil"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTActor bridges the domain event stream to the broker. Telemetry and
// availability flow out as events arrive; command topics flow back in as
// ParsedCommand messages routed through the parent.
type MQTTActor struct {
	config           *config.Config
	behavior         actor.Behavior
	stash            *actorutil.Stash
	client           *mqtt.MQTTClient
	eventStream      *eventstream.EventStream
	eventStreamSub   *eventstream.Subscription
	pendingPublishes int
	logger           *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type OnEventStreamMessage struct {
	message any
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

// Event topic payloads.

type highUsageEventPayload struct {
	DeviceId  string  `json:"deviceId"`
	Power     float64 `json:"power"`
	Threshold float64 `json:"threshold"`
}

type binFullEventPayload struct {
	DeviceId  string `json:"deviceId"`
	FillLevel uint8  `json:"fillLevel"`
	Threshold int    `json:"threshold"`
}

type deviceEventPayload struct {
	DeviceId string `json:"deviceId"`
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to eventStream
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			ctx.Send(ctx.Self(), OnEventStreamMessage{
				message: value,
			})
		})

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case OnEventStreamMessage:
		// receive message from event bus and publish to MQTT if needed
		state.logger.Debug("mqtt@default OnEventStreamMessage", zap.String("type", fmt.Sprintf("%T", msg.message)))
		state.publishDomainEvent(ctx, msg.message)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishDiscoveryRequest")
		err := state.PublishHomeAssistantDiscovery(ctx, msg.Sensors, msg.Switches, msg.InputNumbers)
		if err != nil {
			state.logger.Error("mqtt@default PublishDiscoveryRequest error", zap.Error(err))
		}
		if sender := actorutil.ForRequest(msg).ReplyTo(ctx); sender != nil {
			ctx.Send(sender, domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			})
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// event2MQTTMessages maps one domain event to the MQTT messages it produces.
// Unmapped event types map to nil. Availability and entity states are
// retained so Home Assistant restores them across restarts; telemetry and
// event topics are not.
func (state *MQTTActor) event2MQTTMessages(event any) []rawMessage {
	switch msg := event.(type) {
	case domain.MonitorConnectedEvent:
		return []rawMessage{{
			topic:   state.client.AvailabilityTopic(ecoble.FAMILY_MONITOR, msg.Id),
			message: mqtt.MQTT_PAYLOAD_ONLINE,
			retain:  true,
		}}
	case domain.MonitorDisconnectedEvent:
		return []rawMessage{{
			topic:   state.client.AvailabilityTopic(ecoble.FAMILY_MONITOR, msg.Id),
			message: mqtt.MQTT_PAYLOAD_OFFLINE,
			retain:  true,
		}}
	case domain.MonitorReadingUpdatedEvent:
		return state.monitorReadingMessages(msg.Id, msg.Reading)
	case domain.MonitorSettingsChangedEvent:
		return []rawMessage{{
			topic:   state.client.EntityStateTopic(ecoble.FAMILY_MONITOR, msg.Id, domain.SWITCH_ID_NOTIFICATIONS),
			message: bool2MQTTPayload(msg.Settings.EnableNotifications),
			retain:  true,
		}, {
			topic:   state.client.EntityStateTopic(ecoble.FAMILY_MONITOR, msg.Id, domain.INPUT_NUMBER_ID_HIGH_USAGE_THRESHOLD),
			message: fmt.Sprintf("%.0f", msg.Settings.HighUsageThresholdWatt),
			retain:  true,
		}}
	case domain.PowerChangedEvent:
		return []rawMessage{{
			topic:   state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, msg.Id, domain.SENSOR_ID_POWER),
			message: fmt.Sprintf("%.1f", msg.Power),
		}}
	case domain.EnergyChangedEvent:
		return []rawMessage{{
			topic:   state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, msg.Id, domain.SENSOR_ID_ENERGY),
			message: fmt.Sprintf("%.3f", msg.Energy),
		}}
	case domain.HighEnergyUsageEvent:
		payload, err := json.Marshal(highUsageEventPayload{
			DeviceId:  msg.Id,
			Power:     msg.Power,
			Threshold: msg.Threshold,
		})
		if err != nil {
			return nil
		}
		return []rawMessage{{
			topic:   state.client.EventTopic(ecoble.FAMILY_MONITOR, msg.Id, "high_usage"),
			message: string(payload),
		}}
	case domain.EnergyStatsResetEvent:
		payload, err := json.Marshal(deviceEventPayload{DeviceId: msg.Id})
		if err != nil {
			return nil
		}
		return []rawMessage{{
			topic:   state.client.EventTopic(ecoble.FAMILY_MONITOR, msg.Id, "stats_reset"),
			message: string(payload),
		}}
	case domain.BinConnectedEvent:
		return []rawMessage{{
			topic:   state.client.AvailabilityTopic(ecoble.FAMILY_BIN, msg.Id),
			message: mqtt.MQTT_PAYLOAD_ONLINE,
			retain:  true,
		}}
	case domain.BinDisconnectedEvent:
		return []rawMessage{{
			topic:   state.client.AvailabilityTopic(ecoble.FAMILY_BIN, msg.Id),
			message: mqtt.MQTT_PAYLOAD_OFFLINE,
			retain:  true,
		}}
	case domain.BinReadingUpdatedEvent:
		return state.binReadingMessages(msg.Id, msg.Reading)
	case domain.BinSettingsChangedEvent:
		return []rawMessage{{
			topic:   state.client.EntityStateTopic(ecoble.FAMILY_BIN, msg.Id, domain.SWITCH_ID_NOTIFY_WHEN_FULL),
			message: bool2MQTTPayload(msg.Settings.NotifyWhenFull),
			retain:  true,
		}, {
			topic:   state.client.EntityStateTopic(ecoble.FAMILY_BIN, msg.Id, domain.INPUT_NUMBER_ID_FULL_THRESHOLD),
			message: fmt.Sprintf("%d", msg.Settings.FullThresholdPercent),
			retain:  true,
		}}
	case domain.BinWeightChangedEvent:
		return []rawMessage{{
			topic:   state.client.SensorStateTopic(ecoble.FAMILY_BIN, msg.Id, domain.SENSOR_ID_WEIGHT),
			message: fmt.Sprintf("%.1f", msg.Weight),
		}}
	case domain.BinFillLevelChangedEvent:
		return []rawMessage{{
			topic:   state.client.SensorStateTopic(ecoble.FAMILY_BIN, msg.Id, domain.SENSOR_ID_FILL_LEVEL),
			message: fmt.Sprintf("%d", msg.FillLevel),
		}}
	case domain.BinFullEvent:
		payload, err := json.Marshal(binFullEventPayload{
			DeviceId:  msg.Id,
			FillLevel: msg.FillLevel,
			Threshold: msg.Threshold,
		})
		if err != nil {
			return nil
		}
		return []rawMessage{{
			topic:   state.client.EventTopic(ecoble.FAMILY_BIN, msg.Id, "full"),
			message: string(payload),
		}}
	case domain.BinEmptiedEvent:
		payload, err := json.Marshal(deviceEventPayload{DeviceId: msg.Id})
		if err != nil {
			return nil
		}
		return []rawMessage{{
			topic:   state.client.EventTopic(ecoble.FAMILY_BIN, msg.Id, "emptied"),
			message: string(payload),
		}}
	case domain.BinCalibratedEvent:
		payload, err := json.Marshal(deviceEventPayload{DeviceId: msg.Id})
		if err != nil {
			return nil
		}
		return []rawMessage{{
			topic:   state.client.EventTopic(ecoble.FAMILY_BIN, msg.Id, "calibrated"),
			message: string(payload),
		}}
	default:
		return nil
	}
}

func (state *MQTTActor) monitorReadingMessages(deviceId string, reading domain.EnergyReading) []rawMessage {
	return []rawMessage{
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, deviceId, domain.SENSOR_ID_POWER), message: fmt.Sprintf("%.1f", reading.Power)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, deviceId, domain.SENSOR_ID_VOLTAGE), message: fmt.Sprintf("%.1f", reading.Voltage)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, deviceId, domain.SENSOR_ID_CURRENT), message: fmt.Sprintf("%.2f", reading.Current)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, deviceId, domain.SENSOR_ID_ENERGY), message: fmt.Sprintf("%.3f", reading.Energy)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, deviceId, domain.SENSOR_ID_FREQUENCY), message: fmt.Sprintf("%.2f", reading.Frequency)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, deviceId, domain.SENSOR_ID_POWER_FACTOR), message: fmt.Sprintf("%.2f", reading.PowerFactor)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, deviceId, domain.SENSOR_ID_BATTERY_LEVEL), message: fmt.Sprintf("%d", reading.BatteryLevel)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_MONITOR, deviceId, domain.SENSOR_ID_APPLIANCE), message: labelOrNone(reading.Appliance)},
	}
}

func (state *MQTTActor) binReadingMessages(deviceId string, reading domain.BinReading) []rawMessage {
	return []rawMessage{
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_BIN, deviceId, domain.SENSOR_ID_WEIGHT), message: fmt.Sprintf("%.1f", reading.Weight)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_BIN, deviceId, domain.SENSOR_ID_FILL_LEVEL), message: fmt.Sprintf("%d", reading.FillLevel)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_BIN, deviceId, domain.SENSOR_ID_BATTERY_LEVEL), message: fmt.Sprintf("%d", reading.BatteryLevel)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_BIN, deviceId, domain.SENSOR_ID_LID_STATUS), message: lid2MQTTPayload(reading.IsLidOpen)},
		{topic: state.client.SensorStateTopic(ecoble.FAMILY_BIN, deviceId, domain.SENSOR_ID_MATERIAL_TYPE), message: labelOrNone(reading.MaterialType)},
	}
}

func (state *MQTTActor) publishDomainEvent(ctx actor.Context, event any) {
	msgs := state.event2MQTTMessages(event)
	if len(msgs) == 0 {
		return
	}
	state.pendingPublishes = len(msgs)
	for _, msg := range msgs {
		state.logger.Sugar().Debugf("mqtt@publish: event publish %s => %s", msg.topic, msg.message)
		state.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
			ctx.Send(ctx.Self(), publishResult{Error: err})
		}, 5*time.Second)
	}
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// EventPublishResultReceive waits for every publish of one event batch
// before returning to the default state.
func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state once the batch completes
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		state.pendingPublishes--
		if state.pendingPublishes <= 0 {
			state.behavior.UnbecomeStacked()
			state.stash.UnstashOldest(ctx)
		}
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(ctx actor.Context, sensors []domain.GenericSensor,
	switches []domain.GenericSwitch, inputNumbers []domain.GenericInputNumber) error {
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySensorTopic(sensors[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	for i := range switches {
		msg := mqtt.GenericSwitchToHADiscoveryMessage(state.client, switches[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySwitchTopic(switches[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	for i := range inputNumbers {
		msg := mqtt.GenericInputNumberToHADiscoveryMessage(state.client, inputNumbers[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoveryInputNumberTopic(inputNumbers[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	} else {
		return mqtt.MQTT_PAYLOAD_OFF
	}
}

func lid2MQTTPayload(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func labelOrNone(label *string) string {
	if label == nil || *label == "" {
		return "none"
	}
	return *label
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case domain.PublishMessageRequest:
		if msg.ReplyToRef != nil {
			ctx.Respond(domain.PublishMessageResponse{})
		}
	case domain.PublishDiscoveryRequest:
		if msg.ReplyToRef != nil {
			ctx.Respond(domain.PublishDiscoveryResponse{})
		}
	}
}
