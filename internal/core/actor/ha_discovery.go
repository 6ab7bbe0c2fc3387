package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/config"
	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor announces devices to Home Assistant. The bridge device is
// announced once the MQTT actor is up; monitor and bin devices are announced
// every time one connects, so reconnects refresh the retained discovery
// topics.
type HADiscoveryActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	mqttActor      *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	bridgeDevice   domain.DiscoveryDevice

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		state.bridgeDevice = domain.BridgeDevice(state.config.MQTT.BaseTopic)

		// check MQTT actor healthy before announcing anything
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT actor is not healthy"))
		}

		// bridge discovery
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: domain.BridgeSensors(state.bridgeDevice),
		})

		// device discovery follows connection events
		self := ctx.Self()
		system := ctx.ActorSystem()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			switch value.(type) {
			case domain.MonitorConnectedEvent, domain.BinConnectedEvent:
				system.Root.Send(self, value)
			}
		})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.teardown()
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MonitorConnectedEvent:
		state.logger.Debug("hadiscovery@default monitor connected", zap.String("id", msg.Id))
		monitorDevice := domain.MonitorDiscoveryDevice(state.bridgeDevice, msg.Device)
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:      collapseDeviceInfo(domain.MonitorSensors(monitorDevice, msg.Id)),
			Switches:     domain.MonitorSwitches(monitorDevice, msg.Id),
			InputNumbers: domain.MonitorInputNumbers(monitorDevice, msg.Id),
		})
	case domain.BinConnectedEvent:
		state.logger.Debug("hadiscovery@default bin connected", zap.String("id", msg.Id))
		binDevice := domain.BinDiscoveryDevice(state.bridgeDevice, msg.Device)
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:      collapseDeviceInfo(domain.BinSensors(binDevice, msg.Id)),
			Switches:     domain.BinSwitches(binDevice, msg.Id),
			InputNumbers: domain.BinInputNumbers(binDevice, msg.Id),
		})
	case *actor.Stopping, *actor.Restarting:
		state.teardown()
	default:
		state.logger.Debug("hadiscovery@default: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// collapseDeviceInfo keeps the full device payload on the first entity only.
// Home Assistant merges the rest by device id.
func collapseDeviceInfo(sensors []domain.GenericSensor) []domain.GenericSensor {
	for i := range sensors {
		if i > 0 {
			sensors[i].Device = domain.IdDevice(sensors[i].Device)
		}
	}
	return sensors
}

func (state *HADiscoveryActor) teardown() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
