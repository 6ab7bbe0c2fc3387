package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/util/actorutil"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// Radio calls run as background tasks with these outer bounds. The central
// keeps its own scan limit below the connect bound; the task timeout is what
// keeps a hung radio call from wedging the actor.
const (
	connectTimeout    = 45 * time.Second
	disconnectTimeout = 15 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 15 * time.Second
)

// TransportActor owns the BLE central and serializes all radio I/O. Requests
// run one at a time while the rest of the mailbox is stashed. Central events
// re-enter through the mailbox and are republished on the event stream from
// any state, never stashed.
type TransportActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	central     ecoble.Central
	eventStream *eventstream.EventStream
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

// transportCentralEvent wraps a central event into the mailbox. The central
// invokes handlers on the radio goroutine, so the handler only sends.
type transportCentralEvent struct {
	event ecoble.Event
}

func NewTransportActor(central ecoble.Central, eventStream *eventstream.EventStream, logger *zap.Logger) *TransportActor {
	act := &TransportActor{
		central:     central,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_TRANSPORT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *TransportActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TransportActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("transport@starting started")
		if err := state.central.Open(); err != nil {
			panic(err)
		}
		self := ctx.Self()
		system := ctx.ActorSystem()
		state.central.Subscribe(func(event ecoble.Event) {
			system.Root.Send(self, transportCentralEvent{event: event})
		})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.central.Close()
	default:
		state.logger.Debug("transport@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TransportActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("transport@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TRANSPORT,
			Healthy: true,
			State:   "idle",
		})
	case transportCentralEvent:
		state.publishCentralEvent(msg.event)
	case domain.TransportConnectRequest:
		state.logger.Debug("transport@default: TransportConnectRequest", zap.String("device", msg.DeviceId))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.TransportConnectResponse, error) {
			return state.connect(msg.DeviceId)
		}), mapTaskResult[domain.TransportConnectResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.TransportConnectResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					DeviceId: msg.DeviceId,
				},
				replyTo: sender,
			}
		}).WithTimeout(connectTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.TransportDisconnectRequest:
		state.logger.Debug("transport@default: TransportDisconnectRequest", zap.String("device", msg.DeviceId))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.TransportDisconnectResponse, error) {
			return state.disconnect(msg.DeviceId)
		}), mapTaskResult[domain.TransportDisconnectResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.TransportDisconnectResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					DeviceId: msg.DeviceId,
				},
				replyTo: sender,
			}
		}).WithTimeout(disconnectTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.TransportReadAllRequest:
		state.logger.Debug("transport@default: TransportReadAllRequest", zap.String("device", msg.DeviceId))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.TransportReadAllResponse, error) {
			return state.readAll(msg)
		}), mapTaskResult[domain.TransportReadAllResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.TransportReadAllResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					DeviceId: msg.DeviceId,
				},
				replyTo: sender,
			}
		}).WithTimeout(readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case domain.TransportWriteRequest:
		state.logger.Debug("transport@default: TransportWriteRequest", zap.String("device", msg.DeviceId),
			zap.String("characteristic", msg.CharacteristicUUID))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.TransportWriteResponse, error) {
			return state.write(msg)
		}), mapTaskResult[domain.TransportWriteResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.TransportWriteResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					DeviceId: msg.DeviceId,
				},
				replyTo: sender,
			}
		}).WithTimeout(writeTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTransport)
	case *actor.Stopping:
		state.central.Close()
	default:
		state.logger.Debug("transport@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TransportActor) WaitingTransport(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("transport@WaitingTransport backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case transportCentralEvent:
		state.publishCentralEvent(msg.event)
	case *actor.Stopping:
		state.central.Close()
	default:
		state.logger.Debug("transport@WaitingTransport stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TransportActor) publishCentralEvent(event ecoble.Event) {
	switch ev := event.(type) {
	case ecoble.ConnectedEvent:
		state.logger.Debug("transport: device connected", zap.String("device", ev.Device.ID))
		state.eventStream.Publish(domain.TransportDeviceConnected{Device: ev.Device})
	case ecoble.DisconnectedEvent:
		state.logger.Debug("transport: device disconnected", zap.String("device", ev.DeviceID))
		state.eventStream.Publish(domain.TransportDeviceDisconnected{DeviceId: ev.DeviceID})
	case ecoble.DataEvent:
		state.eventStream.Publish(domain.TransportDataReceived{
			DeviceId:           ev.DeviceID,
			ServiceUUID:        ev.ServiceUUID,
			CharacteristicUUID: ev.CharacteristicUUID,
			Data:               ev.Data,
		})
	}
}

func (a *TransportActor) connect(deviceId string) (*domain.TransportConnectResponse, error) {
	if err := a.central.Connect(context.Background(), deviceId); err != nil {
		a.logger.Warn("connect failed", zap.String("device", deviceId), zap.Error(err))
		return nil, err
	}
	return &domain.TransportConnectResponse{DeviceId: deviceId}, nil
}

func (a *TransportActor) disconnect(deviceId string) (*domain.TransportDisconnectResponse, error) {
	if err := a.central.Disconnect(context.Background(), deviceId); err != nil {
		a.logger.Warn("disconnect failed", zap.String("device", deviceId), zap.Error(err))
		return nil, err
	}
	return &domain.TransportDisconnectResponse{DeviceId: deviceId}, nil
}

// readAll reads every requested characteristic in one pass. A characteristic
// that fails to read is skipped, not fatal: a partial snapshot is still worth
// publishing. Only a fully unreadable device is an error.
func (a *TransportActor) readAll(req domain.TransportReadAllRequest) (*domain.TransportReadAllResponse, error) {
	values := map[string][]byte{}
	for _, charUUID := range req.CharacteristicUUIDs {
		data, err := a.central.Read(context.Background(), req.DeviceId, req.ServiceUUID, charUUID)
		if err != nil {
			a.logger.Warn("characteristic read failed", zap.String("device", req.DeviceId),
				zap.String("characteristic", charUUID), zap.Error(err))
			continue
		}
		values[charUUID] = data
	}
	if len(req.CharacteristicUUIDs) > 0 && len(values) == 0 {
		return nil, fmt.Errorf("no characteristics readable on device %s", req.DeviceId)
	}
	return &domain.TransportReadAllResponse{
		DeviceId: req.DeviceId,
		Values:   values,
	}, nil
}

func (a *TransportActor) write(req domain.TransportWriteRequest) (*domain.TransportWriteResponse, error) {
	err := a.central.Write(context.Background(), req.DeviceId, req.ServiceUUID, req.CharacteristicUUID, req.Data)
	if err != nil {
		a.logger.Warn("characteristic write failed", zap.String("device", req.DeviceId),
			zap.String("characteristic", req.CharacteristicUUID), zap.Error(err))
		return nil, err
	}
	return &domain.TransportWriteResponse{DeviceId: req.DeviceId}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
