package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/core/port"
	"github.com/Havanyani/ecocartapp-sub009/internal/core/service"
	. "github.com/Havanyani/ecocartapp-sub009/internal/util/actorutil"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// SmartBinActor is the bin counterpart of EnergyMonitorActor: readings,
// settings and fill stats per known bin, fed by transport events and the
// periodic refresh, exposed through the BinRequest commands.
type SmartBinActor struct {
	ActorWithStates
	scheduler      *scheduler.TimerScheduler
	stash          *Stash
	transportActor *actor.PID
	store          port.Store
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	tracker        service.BinUsageTracker

	devices        map[string]domain.Device
	readings       map[string]domain.BinReading
	settings       map[string]domain.BinSettings
	stats          map[string]domain.BinStats
	refreshCancels map[string]scheduler.CancelFunc

	logger *zap.Logger
}

type binStateLoaded struct {
	state domain.SmartBinState
}

type binRefreshTick struct {
	deviceId string
}

func NewSmartBinActor(transportActor *actor.PID, store port.Store, eventStream *eventstream.EventStream, logger *zap.Logger) *SmartBinActor {
	act := &SmartBinActor{
		transportActor: transportActor,
		store:          store,
		eventStream:    eventStream,
		stash:          &Stash{},
		tracker:        service.BinUsageTracker{},
		devices:        make(map[string]domain.Device),
		readings:       make(map[string]domain.BinReading),
		settings:       make(map[string]domain.BinSettings),
		stats:          make(map[string]domain.BinStats),
		refreshCancels: make(map[string]scheduler.CancelFunc),
		logger:         ActorLogger(domain.ACTOR_ID_BIN, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(SBStartingState{
		actor: act,
	})
	return act
}

func (state *SmartBinActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type SBStartingState struct {
	ActorState
	actor *SmartBinActor
}

func (state SBStartingState) Name() string {
	return "starting"
}

func (state SBStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("smart_bin@starting started")

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.subscribeTransportEvents(ctx)

		store := state.actor.store
		logger := state.actor.logger
		NewBackgroundTaskNoError(ctx, func() *binStateLoaded {
			return &binStateLoaded{state: loadBinState(store, logger)}
		}).WithTimeout(statePersistTimeout).Recover(func(err error) binStateLoaded {
			logger.Error("smart_bin@starting state load timed out", zap.Error(err))
			return binStateLoaded{state: domain.NewSmartBinState()}
		}).PipeTo(ctx.Self())

		state.actor.Become(SBLoadingState{
			actor: state.actor,
		})
	case *actor.Restarting:
		state.actor.teardown()
	default:
		state.actor.logger.Debug("smart_bin@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Loading state

type SBLoadingState struct {
	ActorState
	actor *SmartBinActor
}

func (state SBLoadingState) Name() string {
	return "loading"
}

func (state SBLoadingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case binStateLoaded:
		state.actor.logger.Debug("smart_bin@loading state loaded",
			zap.Int("readings", len(msg.state.Readings)),
			zap.Int("settings", len(msg.state.Settings)))
		state.actor.readings = msg.state.Readings
		state.actor.settings = msg.state.Settings
		state.actor.stats = msg.state.Stats
		if state.actor.readings == nil {
			state.actor.readings = make(map[string]domain.BinReading)
		}
		if state.actor.settings == nil {
			state.actor.settings = make(map[string]domain.BinSettings)
		}
		if state.actor.stats == nil {
			state.actor.stats = make(map[string]domain.BinStats)
		}
		state.actor.Become(SBIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.teardown()
	default:
		state.actor.logger.Debug("smart_bin@loading: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type SBIdleState struct {
	ActorState
	actor *SmartBinActor
}

func (state SBIdleState) Name() string {
	return "idle"
}

func (state SBIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("smart_bin@idle: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_BIN,
			Healthy: true,
			State:   state.Name(),
		})
	case domain.BinConnectRequest:
		state.actor.logger.Sugar().Debugf("smart_bin@idle: connect %s", msg.Device.Id)
		if !ecoble.IsSmartBin(msg.Device.Metadata.ServiceUUIDs) {
			state.actor.logger.Warn("smart_bin@idle: unsupported device", zap.String("device", msg.Device.Id))
			ForRequest(msg).Respond(ctx, domain.BinConnectResponse{Accepted: false})
			return
		}
		if device, ok := state.actor.devices[msg.Device.Id]; ok && device.ConnectionStatus == domain.CONNECTION_STATUS_CONNECTED {
			ForRequest(msg).Respond(ctx, domain.BinConnectResponse{Accepted: true})
			return
		}
		state.actor.BecomeStacked(SBAwaitConnectState{
			actor:   state.actor,
			device:  msg.Device,
			replyTo: ForRequest(msg).ReplyTo(ctx),
		}.OnEnterAction(ctx))
	case domain.BinDisconnectRequest:
		state.actor.logger.Sugar().Debugf("smart_bin@idle: disconnect %s", msg.DeviceId)
		if _, ok := state.actor.devices[msg.DeviceId]; !ok {
			ForRequest(msg).Respond(ctx, domain.BinDisconnectResponse{Ok: false})
			return
		}
		state.actor.BecomeStacked(SBAwaitDisconnectState{
			actor:    state.actor,
			deviceId: msg.DeviceId,
			replyTo:  ForRequest(msg).ReplyTo(ctx),
		}.OnEnterAction(ctx))
	case domain.BinReadingRequest:
		resp := domain.BinReadingResponse{}
		if reading, ok := state.actor.readings[msg.DeviceId]; ok {
			resp.Reading = &reading
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.BinSettingsRequest:
		resp := domain.BinSettingsResponse{}
		if settings, ok := state.actor.settings[msg.DeviceId]; ok {
			resp.Settings = &settings
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.BinStatsRequest:
		resp := domain.BinStatsResponse{}
		if stats, ok := state.actor.stats[msg.DeviceId]; ok {
			resp.Stats = &stats
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.BinUpdateSettingsRequest:
		state.actor.logger.Sugar().Debugf("smart_bin@idle: update settings %s", msg.DeviceId)
		device, ok := state.actor.devices[msg.DeviceId]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.BinUpdateSettingsResponse{Ok: false})
			return
		}
		merged := state.actor.settingsOrDefault(msg.DeviceId).Merge(msg.Patch)
		state.actor.BecomeStacked(SBAwaitSettingsWriteState{
			actor:    state.actor,
			device:   device,
			settings: merged,
			replyTo:  ForRequest(msg).ReplyTo(ctx),
		}.OnEnterAction(ctx))
	case domain.BinEmptiedRequest:
		state.actor.logger.Sugar().Debugf("smart_bin@idle: emptied %s", msg.DeviceId)
		if !state.actor.isKnown(msg.DeviceId) {
			ForRequest(msg).Respond(ctx, domain.BinEmptiedResponse{Ok: false})
			return
		}
		state.actor.stats[msg.DeviceId] = state.actor.tracker.RegisterEmptied(state.actor.statsOrNew(msg.DeviceId), time.Now())
		state.actor.persistState(ctx)
		state.actor.publishBinEvent(domain.BinEmptiedEvent{
			BinEventMixIn: domain.BinEventMixIn{Id: msg.DeviceId},
		})
		ForRequest(msg).Respond(ctx, domain.BinEmptiedResponse{Ok: true})
	case domain.BinCalibrateRequest:
		state.actor.logger.Sugar().Debugf("smart_bin@idle: calibrate %s", msg.DeviceId)
		device, ok := state.actor.devices[msg.DeviceId]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.BinCalibrateResponse{Ok: false})
			return
		}
		state.actor.BecomeStacked(SBAwaitCalibrateState{
			actor:   state.actor,
			device:  device,
			replyTo: ForRequest(msg).ReplyTo(ctx),
		}.OnEnterAction(ctx))
	case binRefreshTick:
		device, ok := state.actor.devices[msg.deviceId]
		if !ok || device.ConnectionStatus != domain.CONNECTION_STATUS_CONNECTED {
			return
		}
		state.actor.BecomeStacked(SBAwaitRefreshReadState{
			actor:  state.actor,
			device: device,
		}.OnEnterAction(ctx))
	case domain.TransportDeviceConnected:
		if !ecoble.IsSmartBin(msg.Device.ServiceUUIDs) || !state.actor.isKnown(msg.Device.ID) {
			return
		}
		if device, ok := state.actor.devices[msg.Device.ID]; ok && device.ConnectionStatus == domain.CONNECTION_STATUS_CONNECTED {
			return
		}
		state.actor.logger.Info("smart_bin@idle: transport reports device up", zap.String("device", msg.Device.ID))
		state.actor.BecomeStacked(SBAwaitInitialReadState{
			actor:  state.actor,
			device: domain.DeviceFromDescriptor(msg.Device, domain.DEVICE_TYPE_SMART_BIN),
		}.OnEnterAction(ctx))
	case domain.TransportDeviceDisconnected:
		state.actor.handleDeviceDown(ctx, msg.DeviceId)
	case domain.TransportDataReceived:
		if !ecoble.IsSmartBin([]string{msg.ServiceUUID}) {
			return
		}
		if !state.actor.isKnown(msg.DeviceId) {
			state.actor.logger.Debug("smart_bin@idle: data for unknown device", zap.String("device", msg.DeviceId))
			return
		}
		state.actor.applyValues(ctx, msg.DeviceId, map[string][]byte{msg.CharacteristicUUID: msg.Data}, time.Now())
	case *actor.Restarting:
		state.actor.teardown()
	case *actor.Stopping:
		state.actor.teardown()
	default:
		state.actor.logger.Debug("smart_bin@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Await transport connect state

type SBAwaitConnectState struct {
	ActorState
	actor   *SmartBinActor
	device  domain.Device
	replyTo *actor.PID
}

func (state SBAwaitConnectState) Name() string {
	return "awaitTransportConnect"
}

func (state SBAwaitConnectState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportConnectResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Error("smart_bin@awaitTransportConnect: connect failed",
				zap.String("device", state.device.Id), zap.Error(msg.GetResponseError()))
			if state.replyTo != nil {
				ctx.Send(state.replyTo, domain.BinConnectResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: msg.GetResponseError()},
					Accepted:           false,
				})
			}
			state.actor.UnbecomeStacked()
			state.actor.stash.UnstashAll(ctx)
			return
		}
		state.actor.UnbecomeStacked()
		state.actor.BecomeStacked(SBAwaitInitialReadState{
			actor:   state.actor,
			device:  state.device,
			replyTo: state.replyTo,
		}.OnEnterAction(ctx))
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Error("smart_bin@awaitTransportConnect: ReceiveTimeout", zap.String("device", state.device.Id))
		if state.replyTo != nil {
			ctx.Send(state.replyTo, domain.BinConnectResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("transport connect timed out")},
				Accepted:           false,
			})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("smart_bin@awaitTransportConnect: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state SBAwaitConnectState) OnEnterAction(ctx actor.Context) SBAwaitConnectState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportConnectRequest{DeviceId: state.device.Id}, transportConnectReplyTimeout),
		func(err error) any {
			return domain.TransportConnectResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				DeviceId:           state.device.Id,
			}
		})
	ctx.SetReceiveTimeout(transportConnectReplyTimeout)
	return state
}

// Await initial read state

type SBAwaitInitialReadState struct {
	ActorState
	actor   *SmartBinActor
	device  domain.Device
	replyTo *actor.PID
}

func (state SBAwaitInitialReadState) Name() string {
	return "awaitInitialRead"
}

func (state SBAwaitInitialReadState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportReadAllResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Warn("smart_bin@awaitInitialRead: read failed",
				zap.String("device", state.device.Id), zap.Error(msg.GetResponseError()))
		}
		state.actor.applyInitialRead(state.device.Id, msg.Values, time.Now())
		state.finish(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Warn("smart_bin@awaitInitialRead: ReceiveTimeout", zap.String("device", state.device.Id))
		state.actor.applyInitialRead(state.device.Id, nil, time.Now())
		state.finish(ctx)
	default:
		state.actor.logger.Debug("smart_bin@awaitInitialRead: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state SBAwaitInitialReadState) finish(ctx actor.Context) {
	state.actor.completeDeviceUp(ctx, state.device)
	if state.replyTo != nil {
		ctx.Send(state.replyTo, domain.BinConnectResponse{Accepted: true})
	}
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

func (state SBAwaitInitialReadState) OnEnterAction(ctx actor.Context) SBAwaitInitialReadState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportReadAllRequest{
			DeviceId:            state.device.Id,
			ServiceUUID:         binServiceUUID(state.device),
			CharacteristicUUIDs: ecoble.BinTelemetryCharacteristics(),
		}, transportReadReplyTimeout),
		func(err error) any {
			return domain.TransportReadAllResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				DeviceId:           state.device.Id,
			}
		})
	ctx.SetReceiveTimeout(transportReadReplyTimeout)
	return state
}

// Await refresh read state

type SBAwaitRefreshReadState struct {
	ActorState
	actor  *SmartBinActor
	device domain.Device
}

func (state SBAwaitRefreshReadState) Name() string {
	return "awaitRefreshRead"
}

func (state SBAwaitRefreshReadState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportReadAllResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Warn("smart_bin@awaitRefreshRead: read failed",
				zap.String("device", state.device.Id), zap.Error(msg.GetResponseError()))
		} else {
			state.actor.applyValues(ctx, state.device.Id, msg.Values, time.Now())
		}
		state.finish(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Warn("smart_bin@awaitRefreshRead: ReceiveTimeout", zap.String("device", state.device.Id))
		state.finish(ctx)
	default:
		state.actor.logger.Debug("smart_bin@awaitRefreshRead: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state SBAwaitRefreshReadState) finish(ctx actor.Context) {
	if device, ok := state.actor.devices[state.device.Id]; ok && device.ConnectionStatus == domain.CONNECTION_STATUS_CONNECTED {
		state.actor.scheduleRefresh(ctx, state.device.Id)
	}
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

func (state SBAwaitRefreshReadState) OnEnterAction(ctx actor.Context) SBAwaitRefreshReadState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportReadAllRequest{
			DeviceId:            state.device.Id,
			ServiceUUID:         binServiceUUID(state.device),
			CharacteristicUUIDs: ecoble.BinTelemetryCharacteristics(),
		}, transportReadReplyTimeout),
		func(err error) any {
			return domain.TransportReadAllResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				DeviceId:           state.device.Id,
			}
		})
	ctx.SetReceiveTimeout(transportReadReplyTimeout)
	return state
}

// Await transport disconnect state

type SBAwaitDisconnectState struct {
	ActorState
	actor    *SmartBinActor
	deviceId string
	replyTo  *actor.PID
}

func (state SBAwaitDisconnectState) Name() string {
	return "awaitTransportDisconnect"
}

func (state SBAwaitDisconnectState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportDisconnectResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Error("smart_bin@awaitTransportDisconnect: disconnect failed",
				zap.String("device", state.deviceId), zap.Error(msg.GetResponseError()))
			if state.replyTo != nil {
				ctx.Send(state.replyTo, domain.BinDisconnectResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: msg.GetResponseError()},
					Ok:                 false,
				})
			}
		} else {
			state.actor.handleDeviceDown(ctx, state.deviceId)
			if state.replyTo != nil {
				ctx.Send(state.replyTo, domain.BinDisconnectResponse{Ok: true})
			}
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Error("smart_bin@awaitTransportDisconnect: ReceiveTimeout", zap.String("device", state.deviceId))
		if state.replyTo != nil {
			ctx.Send(state.replyTo, domain.BinDisconnectResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("transport disconnect timed out")},
				Ok:                 false,
			})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("smart_bin@awaitTransportDisconnect: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state SBAwaitDisconnectState) OnEnterAction(ctx actor.Context) SBAwaitDisconnectState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportDisconnectRequest{DeviceId: state.deviceId}, transportDisconnectReplyTimeout),
		func(err error) any {
			return domain.TransportDisconnectResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				DeviceId:           state.deviceId,
			}
		})
	ctx.SetReceiveTimeout(transportDisconnectReplyTimeout)
	return state
}

// Await settings write state

type SBAwaitSettingsWriteState struct {
	ActorState
	actor    *SmartBinActor
	device   domain.Device
	settings domain.BinSettings
	replyTo  *actor.PID
}

func (state SBAwaitSettingsWriteState) Name() string {
	return "awaitSettingsWrite"
}

func (state SBAwaitSettingsWriteState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportWriteResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.fail(ctx, msg.GetResponseError())
			return
		}
		state.actor.settings[state.device.Id] = state.settings
		state.actor.persistState(ctx)
		state.actor.publishBinEvent(domain.BinSettingsChangedEvent{
			BinEventMixIn: domain.BinEventMixIn{Id: state.device.Id},
			Settings:      state.settings,
		})
		if state.replyTo != nil {
			settings := state.settings
			ctx.Send(state.replyTo, domain.BinUpdateSettingsResponse{Ok: true, Settings: &settings})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.fail(ctx, errors.New("transport write timed out"))
	default:
		state.actor.logger.Debug("smart_bin@awaitSettingsWrite: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state SBAwaitSettingsWriteState) fail(ctx actor.Context, err error) {
	state.actor.logger.Error("smart_bin@awaitSettingsWrite: settings write failed",
		zap.String("device", state.device.Id), zap.Error(err))
	if state.replyTo != nil {
		current := state.actor.settingsOrDefault(state.device.Id)
		ctx.Send(state.replyTo, domain.BinUpdateSettingsResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Ok:                 false,
			Settings:           &current,
		})
	}
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

func (state SBAwaitSettingsWriteState) OnEnterAction(ctx actor.Context) SBAwaitSettingsWriteState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportWriteRequest{
			DeviceId:           state.device.Id,
			ServiceUUID:        binServiceUUID(state.device),
			CharacteristicUUID: ecoble.CHAR_UUID_BIN_SETTINGS,
			Data:               ecoble.EncodeBinSettings(state.settings.Record()),
		}, transportWriteReplyTimeout),
		func(err error) any {
			return domain.TransportWriteResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				DeviceId:           state.device.Id,
			}
		})
	ctx.SetReceiveTimeout(transportWriteReplyTimeout)
	return state
}

// Await calibrate state

// SBAwaitCalibrateState writes the tare frame to the settings characteristic
// and reports true only when the device took it.
type SBAwaitCalibrateState struct {
	ActorState
	actor   *SmartBinActor
	device  domain.Device
	replyTo *actor.PID
}

func (state SBAwaitCalibrateState) Name() string {
	return "awaitCalibrate"
}

func (state SBAwaitCalibrateState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportWriteResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Error("smart_bin@awaitCalibrate: calibrate write failed",
				zap.String("device", state.device.Id), zap.Error(msg.GetResponseError()))
			if state.replyTo != nil {
				ctx.Send(state.replyTo, domain.BinCalibrateResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: msg.GetResponseError()},
					Ok:                 false,
				})
			}
		} else {
			state.actor.publishBinEvent(domain.BinCalibratedEvent{
				BinEventMixIn: domain.BinEventMixIn{Id: state.device.Id},
			})
			if state.replyTo != nil {
				ctx.Send(state.replyTo, domain.BinCalibrateResponse{Ok: true})
			}
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Error("smart_bin@awaitCalibrate: ReceiveTimeout", zap.String("device", state.device.Id))
		if state.replyTo != nil {
			ctx.Send(state.replyTo, domain.BinCalibrateResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("transport write timed out")},
				Ok:                 false,
			})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("smart_bin@awaitCalibrate: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state SBAwaitCalibrateState) OnEnterAction(ctx actor.Context) SBAwaitCalibrateState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportWriteRequest{
			DeviceId:           state.device.Id,
			ServiceUUID:        binServiceUUID(state.device),
			CharacteristicUUID: ecoble.CHAR_UUID_BIN_SETTINGS,
			Data:               ecoble.BinCalibrationCommand(),
		}, transportWriteReplyTimeout),
		func(err error) any {
			return domain.TransportWriteResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				DeviceId:           state.device.Id,
			}
		})
	ctx.SetReceiveTimeout(transportWriteReplyTimeout)
	return state
}

// Other actor function helpers

func (state *SmartBinActor) subscribeTransportEvents(ctx actor.Context) {
	self := ctx.Self()
	system := ctx.ActorSystem()
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		switch value.(type) {
		case domain.TransportDeviceConnected, domain.TransportDeviceDisconnected, domain.TransportDataReceived:
			system.Root.Send(self, value)
		}
	})
}

func (state *SmartBinActor) teardown() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	for id, cancel := range state.refreshCancels {
		if cancel != nil {
			cancel()
		}
		delete(state.refreshCancels, id)
	}
}

func (state *SmartBinActor) completeDeviceUp(ctx actor.Context, device domain.Device) {
	device.ConnectionStatus = domain.CONNECTION_STATUS_CONNECTED
	state.devices[device.Id] = device
	settings := state.settingsOrDefault(device.Id)
	state.settings[device.Id] = settings
	if _, ok := state.stats[device.Id]; !ok {
		state.stats[device.Id] = domain.NewBinStats()
	}
	state.persistState(ctx)
	mixin := domain.BinEventMixIn{Id: device.Id}
	state.publishBinEvent(domain.BinConnectedEvent{BinEventMixIn: mixin, Device: device})
	state.publishBinEvent(domain.BinReadingUpdatedEvent{BinEventMixIn: mixin, Reading: state.readings[device.Id]})
	state.publishBinEvent(domain.BinSettingsChangedEvent{BinEventMixIn: mixin, Settings: settings})
	state.scheduleRefresh(ctx, device.Id)
}

func (state *SmartBinActor) handleDeviceDown(ctx actor.Context, deviceId string) {
	device, ok := state.devices[deviceId]
	if !ok || device.ConnectionStatus != domain.CONNECTION_STATUS_CONNECTED {
		return
	}
	state.logger.Info("smart_bin: device down", zap.String("device", deviceId))
	device.ConnectionStatus = domain.CONNECTION_STATUS_DISCONNECTED
	state.devices[deviceId] = device
	state.cancelRefresh(deviceId)
	state.persistState(ctx)
	state.publishBinEvent(domain.BinDisconnectedEvent{
		BinEventMixIn: domain.BinEventMixIn{Id: deviceId},
	})
}

func (state *SmartBinActor) scheduleRefresh(ctx actor.Context, deviceId string) {
	state.cancelRefresh(deviceId)
	state.refreshCancels[deviceId] = state.scheduler.RequestOnce(defaultRefreshInterval, ctx.Self(), binRefreshTick{deviceId: deviceId})
}

func (state *SmartBinActor) cancelRefresh(deviceId string) {
	if cancel, ok := state.refreshCancels[deviceId]; ok {
		if cancel != nil {
			cancel()
		}
		delete(state.refreshCancels, deviceId)
	}
}

func (state *SmartBinActor) applyInitialRead(deviceId string, values map[string][]byte, at time.Time) {
	reading := state.readings[deviceId]
	calibration := state.settingsOrDefault(deviceId).WeightCalibration
	for charUUID, data := range values {
		if field, ok := ecoble.FieldForCharacteristic(charUUID); ok {
			decodeBinField(&reading, field, data, calibration)
		}
	}
	reading.Timestamp = at
	state.readings[deviceId] = reading
}

func (state *SmartBinActor) applyValues(ctx actor.Context, deviceId string, values map[string][]byte, at time.Time) {
	var events []any
	snapshot := false
	for charUUID, data := range values {
		fieldEvents, fieldSnapshot := state.applyCharacteristic(deviceId, charUUID, data, at)
		events = append(events, fieldEvents...)
		snapshot = snapshot || fieldSnapshot
	}
	if len(events) == 0 && !snapshot {
		return
	}
	state.persistState(ctx)
	for _, event := range events {
		state.publishBinEvent(event)
	}
	if snapshot {
		state.publishBinEvent(domain.BinReadingUpdatedEvent{
			BinEventMixIn: domain.BinEventMixIn{Id: deviceId},
			Reading:       state.readings[deviceId],
		})
	}
}

func (state *SmartBinActor) applyCharacteristic(deviceId string, charUUID string, data []byte, at time.Time) ([]any, bool) {
	field, ok := ecoble.FieldForCharacteristic(charUUID)
	if !ok {
		return nil, false
	}
	settings := state.settingsOrDefault(deviceId)
	reading := state.readings[deviceId]
	prev := reading
	if !decodeBinField(&reading, field, data, settings.WeightCalibration) {
		return nil, false
	}
	stats := state.statsOrNew(deviceId)
	mixin := domain.BinEventMixIn{Id: deviceId}

	var events []any
	snapshot := false
	switch field {
	case ecoble.FIELD_WEIGHT:
		if settings.EnableWeightTracking {
			stats = state.tracker.ApplyWeightSample(stats, prev.Weight, reading.Weight, at)
		}
		events = append(events, domain.BinWeightChangedEvent{BinEventMixIn: mixin, Weight: reading.Weight})
	case ecoble.FIELD_FILL_LEVEL:
		stats = state.tracker.ApplyFillSample(stats, reading.FillLevel, at)
		events = append(events, domain.BinFillLevelChangedEvent{BinEventMixIn: mixin, FillLevel: reading.FillLevel})
		// level triggered: every qualifying sample raises the event again
		if settings.NotifyWhenFull && int(reading.FillLevel) > settings.FullThresholdPercent {
			events = append(events, domain.BinFullEvent{
				BinEventMixIn: mixin,
				FillLevel:     reading.FillLevel,
				Threshold:     settings.FullThresholdPercent,
			})
		}
	case ecoble.FIELD_MATERIAL_TYPE:
		if settings.AutoDetectMaterials {
			stats = state.tracker.ApplyMaterialDetection(stats, prev.MaterialType, reading.MaterialType)
		}
		snapshot = true
	default:
		snapshot = true
	}
	reading.Timestamp = at
	state.readings[deviceId] = reading
	state.stats[deviceId] = stats
	return events, snapshot
}

func (state *SmartBinActor) persistState(ctx actor.Context) {
	payload, err := json.Marshal(domain.SmartBinState{
		Readings: state.readings,
		Settings: state.settings,
		Stats:    state.stats,
	})
	if err != nil {
		state.logger.Error("smart_bin: state marshal failed", zap.Error(err))
		return
	}
	store := state.store
	logger := state.logger
	NewBackgroundTaskErr(ctx, func() error {
		return store.Set(context.Background(), domain.STORE_KEY_SMART_BIN, payload)
	}).WithTimeout(statePersistTimeout).OnError(func(err error) {
		logger.Error("smart_bin: state persist failed", zap.Error(err))
	}).Run()
}

func (state *SmartBinActor) publishBinEvent(event any) {
	state.eventStream.Publish(event)
}

func (state *SmartBinActor) settingsOrDefault(deviceId string) domain.BinSettings {
	if settings, ok := state.settings[deviceId]; ok {
		return settings
	}
	return domain.DefaultBinSettings()
}

func (state *SmartBinActor) statsOrNew(deviceId string) domain.BinStats {
	if stats, ok := state.stats[deviceId]; ok {
		return stats
	}
	return domain.NewBinStats()
}

func (state *SmartBinActor) isKnown(deviceId string) bool {
	if _, ok := state.devices[deviceId]; ok {
		return true
	}
	if _, ok := state.readings[deviceId]; ok {
		return true
	}
	if _, ok := state.settings[deviceId]; ok {
		return true
	}
	_, ok := state.stats[deviceId]
	return ok
}

// decodeBinField applies one payload to the reading. Weight is scaled by the
// configured calibration factor as it is decoded.
func decodeBinField(reading *domain.BinReading, field ecoble.Field, data []byte, weightCalibration float64) bool {
	switch field {
	case ecoble.FIELD_WEIGHT:
		reading.Weight = ecoble.DecodeWeight(data) * weightCalibration
	case ecoble.FIELD_FILL_LEVEL:
		reading.FillLevel = ecoble.DecodeFillLevel(data)
	case ecoble.FIELD_BATTERY_LEVEL:
		reading.BatteryLevel = ecoble.DecodeBatteryLevel(data)
	case ecoble.FIELD_LID_STATUS:
		reading.IsLidOpen = ecoble.DecodeLidStatus(data)
	case ecoble.FIELD_MATERIAL_TYPE:
		reading.MaterialType = ecoble.DecodeMaterial(data)
	default:
		return false
	}
	return true
}

func binServiceUUID(device domain.Device) string {
	if model, ok := ecoble.BinModelFor(device.Metadata.ServiceUUIDs); ok {
		if uuid, ok := ecoble.ServiceUUIDForModel(model); ok {
			return uuid
		}
	}
	return ecoble.SERVICE_UUID_ECO_BIN_PRO
}

func loadBinState(store port.Store, logger *zap.Logger) domain.SmartBinState {
	loaded := domain.NewSmartBinState()
	data, ok, err := store.Get(context.Background(), domain.STORE_KEY_SMART_BIN)
	if err != nil {
		logger.Error("smart_bin: state load failed", zap.Error(err))
		return loaded
	}
	if !ok {
		return loaded
	}
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Error("smart_bin: state decode failed", zap.Error(err))
		return domain.NewSmartBinState()
	}
	return loaded
}
