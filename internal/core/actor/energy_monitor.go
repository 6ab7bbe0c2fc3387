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

// Reply timeouts for transport round trips. Each sits above the matching
// task bound inside the transport actor, so the recovered timeout error
// only fires when the transport itself stopped answering.
const (
	transportConnectReplyTimeout    = 50 * time.Second
	transportDisconnectReplyTimeout = 20 * time.Second
	transportReadReplyTimeout       = 35 * time.Second
	transportWriteReplyTimeout      = 20 * time.Second

	statePersistTimeout    = 5 * time.Second
	defaultRefreshInterval = 60 * time.Second
)

// EnergyMonitorActor owns every known energy monitor: readings, settings and
// usage stats keyed by device id. Connects, reads and settings writes go
// through the transport actor; decoded changes are persisted and published on
// the domain event stream.
type EnergyMonitorActor struct {
	ActorWithStates
	scheduler      *scheduler.TimerScheduler
	stash          *Stash
	transportActor *actor.PID
	store          port.Store
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	tracker        service.EnergyUsageTracker
	advisor        service.EfficiencyAdvisor

	devices        map[string]domain.Device
	readings       map[string]domain.EnergyReading
	settings       map[string]domain.EnergySettings
	stats          map[string]domain.EnergyStats
	refreshCancels map[string]scheduler.CancelFunc

	logger *zap.Logger
}

type monitorStateLoaded struct {
	state domain.EnergyMonitorState
}

type monitorRefreshTick struct {
	deviceId string
}

func NewEnergyMonitorActor(transportActor *actor.PID, store port.Store, eventStream *eventstream.EventStream, logger *zap.Logger) *EnergyMonitorActor {
	act := &EnergyMonitorActor{
		transportActor: transportActor,
		store:          store,
		eventStream:    eventStream,
		stash:          &Stash{},
		tracker:        service.EnergyUsageTracker{},
		advisor:        service.EfficiencyAdvisor{},
		devices:        make(map[string]domain.Device),
		readings:       make(map[string]domain.EnergyReading),
		settings:       make(map[string]domain.EnergySettings),
		stats:          make(map[string]domain.EnergyStats),
		refreshCancels: make(map[string]scheduler.CancelFunc),
		logger:         ActorLogger(domain.ACTOR_ID_MONITOR, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(EMStartingState{
		actor: act,
	})
	return act
}

func (state *EnergyMonitorActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type EMStartingState struct {
	ActorState
	actor *EnergyMonitorActor
}

func (state EMStartingState) Name() string {
	return "starting"
}

func (state EMStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("energy_monitor@starting started")

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.subscribeTransportEvents(ctx)

		store := state.actor.store
		logger := state.actor.logger
		NewBackgroundTaskNoError(ctx, func() *monitorStateLoaded {
			return &monitorStateLoaded{state: loadMonitorState(store, logger)}
		}).WithTimeout(statePersistTimeout).Recover(func(err error) monitorStateLoaded {
			logger.Error("energy_monitor@starting state load timed out", zap.Error(err))
			return monitorStateLoaded{state: domain.NewEnergyMonitorState()}
		}).PipeTo(ctx.Self())

		state.actor.Become(EMLoadingState{
			actor: state.actor,
		})
	case *actor.Restarting:
		state.actor.teardown()
	default:
		state.actor.logger.Debug("energy_monitor@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Loading state

type EMLoadingState struct {
	ActorState
	actor *EnergyMonitorActor
}

func (state EMLoadingState) Name() string {
	return "loading"
}

func (state EMLoadingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case monitorStateLoaded:
		state.actor.logger.Debug("energy_monitor@loading state loaded",
			zap.Int("readings", len(msg.state.Readings)),
			zap.Int("settings", len(msg.state.Settings)))
		state.actor.readings = msg.state.Readings
		state.actor.settings = msg.state.Settings
		state.actor.stats = msg.state.Stats
		if state.actor.readings == nil {
			state.actor.readings = make(map[string]domain.EnergyReading)
		}
		if state.actor.settings == nil {
			state.actor.settings = make(map[string]domain.EnergySettings)
		}
		if state.actor.stats == nil {
			state.actor.stats = make(map[string]domain.EnergyStats)
		}
		state.actor.Become(EMIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.teardown()
	default:
		state.actor.logger.Debug("energy_monitor@loading: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type EMIdleState struct {
	ActorState
	actor *EnergyMonitorActor
}

func (state EMIdleState) Name() string {
	return "idle"
}

func (state EMIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("energy_monitor@idle: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MONITOR,
			Healthy: true,
			State:   state.Name(),
		})
	case domain.MonitorConnectRequest:
		state.actor.logger.Sugar().Debugf("energy_monitor@idle: connect %s", msg.Device.Id)
		if !ecoble.IsEnergyMonitor(msg.Device.Metadata.ServiceUUIDs) {
			state.actor.logger.Warn("energy_monitor@idle: unsupported device", zap.String("device", msg.Device.Id))
			ForRequest(msg).Respond(ctx, domain.MonitorConnectResponse{Accepted: false})
			return
		}
		if device, ok := state.actor.devices[msg.Device.Id]; ok && device.ConnectionStatus == domain.CONNECTION_STATUS_CONNECTED {
			ForRequest(msg).Respond(ctx, domain.MonitorConnectResponse{Accepted: true})
			return
		}
		state.actor.BecomeStacked(EMAwaitConnectState{
			actor:   state.actor,
			device:  msg.Device,
			replyTo: ForRequest(msg).ReplyTo(ctx),
		}.OnEnterAction(ctx))
	case domain.MonitorDisconnectRequest:
		state.actor.logger.Sugar().Debugf("energy_monitor@idle: disconnect %s", msg.DeviceId)
		if _, ok := state.actor.devices[msg.DeviceId]; !ok {
			ForRequest(msg).Respond(ctx, domain.MonitorDisconnectResponse{Ok: false})
			return
		}
		state.actor.BecomeStacked(EMAwaitDisconnectState{
			actor:    state.actor,
			deviceId: msg.DeviceId,
			replyTo:  ForRequest(msg).ReplyTo(ctx),
		}.OnEnterAction(ctx))
	case domain.MonitorReadingRequest:
		resp := domain.MonitorReadingResponse{}
		if reading, ok := state.actor.readings[msg.DeviceId]; ok {
			resp.Reading = &reading
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.MonitorSettingsRequest:
		resp := domain.MonitorSettingsResponse{}
		if settings, ok := state.actor.settings[msg.DeviceId]; ok {
			resp.Settings = &settings
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.MonitorStatsRequest:
		resp := domain.MonitorStatsResponse{}
		if stats, ok := state.actor.stats[msg.DeviceId]; ok {
			resp.Stats = &stats
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.MonitorUpdateSettingsRequest:
		state.actor.logger.Sugar().Debugf("energy_monitor@idle: update settings %s", msg.DeviceId)
		device, ok := state.actor.devices[msg.DeviceId]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.MonitorUpdateSettingsResponse{Ok: false})
			return
		}
		merged := state.actor.settingsOrDefault(msg.DeviceId).Merge(msg.Patch)
		state.actor.BecomeStacked(EMAwaitSettingsWriteState{
			actor:    state.actor,
			device:   device,
			settings: merged,
			replyTo:  ForRequest(msg).ReplyTo(ctx),
		}.OnEnterAction(ctx))
	case domain.MonitorResetStatsRequest:
		state.actor.logger.Sugar().Debugf("energy_monitor@idle: reset stats %s", msg.DeviceId)
		if !state.actor.isKnown(msg.DeviceId) {
			ForRequest(msg).Respond(ctx, domain.MonitorResetStatsResponse{Ok: false})
			return
		}
		state.actor.stats[msg.DeviceId] = state.actor.tracker.Reset(state.actor.statsOrNew(msg.DeviceId))
		state.actor.persistState(ctx)
		state.actor.publishMonitorEvent(domain.EnergyStatsResetEvent{
			MonitorEventMixIn: domain.MonitorEventMixIn{Id: msg.DeviceId},
		})
		ForRequest(msg).Respond(ctx, domain.MonitorResetStatsResponse{Ok: true})
	case domain.MonitorEnergyCostRequest:
		var settings *domain.EnergySettings
		if s, ok := state.actor.settings[msg.DeviceId]; ok {
			settings = &s
		}
		ForRequest(msg).Respond(ctx, domain.MonitorEnergyCostResponse{
			Cost: state.actor.advisor.EnergyCost(msg.KWh, settings),
		})
	case domain.MonitorRecommendationsRequest:
		var reading *domain.EnergyReading
		if r, ok := state.actor.readings[msg.DeviceId]; ok {
			reading = &r
		}
		var settings *domain.EnergySettings
		if s, ok := state.actor.settings[msg.DeviceId]; ok {
			settings = &s
		}
		ForRequest(msg).Respond(ctx, domain.MonitorRecommendationsResponse{
			Recommendations: state.actor.advisor.Recommendations(reading, settings),
		})
	case domain.EnergyDayRolloverTick:
		state.actor.logger.Info("energy_monitor@idle: day rollover", zap.Int("devices", len(state.actor.stats)))
		for id, stats := range state.actor.stats {
			state.actor.stats[id] = state.actor.tracker.Rollover(stats)
		}
		if len(state.actor.stats) > 0 {
			state.actor.persistState(ctx)
		}
	case monitorRefreshTick:
		device, ok := state.actor.devices[msg.deviceId]
		if !ok || device.ConnectionStatus != domain.CONNECTION_STATUS_CONNECTED {
			return
		}
		state.actor.BecomeStacked(EMAwaitRefreshReadState{
			actor:  state.actor,
			device: device,
		}.OnEnterAction(ctx))
	case domain.TransportDeviceConnected:
		// connected events for devices never seen before are ignored;
		// becoming known takes an explicit connect
		if !ecoble.IsEnergyMonitor(msg.Device.ServiceUUIDs) || !state.actor.isKnown(msg.Device.ID) {
			return
		}
		if device, ok := state.actor.devices[msg.Device.ID]; ok && device.ConnectionStatus == domain.CONNECTION_STATUS_CONNECTED {
			return
		}
		state.actor.logger.Info("energy_monitor@idle: transport reports device up", zap.String("device", msg.Device.ID))
		state.actor.BecomeStacked(EMAwaitInitialReadState{
			actor:  state.actor,
			device: domain.DeviceFromDescriptor(msg.Device, domain.DEVICE_TYPE_ENERGY_MONITOR),
		}.OnEnterAction(ctx))
	case domain.TransportDeviceDisconnected:
		state.actor.handleDeviceDown(ctx, msg.DeviceId)
	case domain.TransportDataReceived:
		if !ecoble.IsEnergyMonitor([]string{msg.ServiceUUID}) {
			return
		}
		if !state.actor.isKnown(msg.DeviceId) {
			state.actor.logger.Debug("energy_monitor@idle: data for unknown device", zap.String("device", msg.DeviceId))
			return
		}
		state.actor.applyValues(ctx, msg.DeviceId, map[string][]byte{msg.CharacteristicUUID: msg.Data}, time.Now())
	case *actor.Restarting:
		state.actor.teardown()
	case *actor.Stopping:
		state.actor.teardown()
	default:
		state.actor.logger.Debug("energy_monitor@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Await transport connect state

type EMAwaitConnectState struct {
	ActorState
	actor   *EnergyMonitorActor
	device  domain.Device
	replyTo *actor.PID
}

func (state EMAwaitConnectState) Name() string {
	return "awaitTransportConnect"
}

func (state EMAwaitConnectState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportConnectResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Error("energy_monitor@awaitTransportConnect: connect failed",
				zap.String("device", state.device.Id), zap.Error(msg.GetResponseError()))
			if state.replyTo != nil {
				ctx.Send(state.replyTo, domain.MonitorConnectResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: msg.GetResponseError()},
					Accepted:           false,
				})
			}
			state.actor.UnbecomeStacked()
			state.actor.stash.UnstashAll(ctx)
			return
		}
		state.actor.UnbecomeStacked()
		state.actor.BecomeStacked(EMAwaitInitialReadState{
			actor:   state.actor,
			device:  state.device,
			replyTo: state.replyTo,
		}.OnEnterAction(ctx))
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Error("energy_monitor@awaitTransportConnect: ReceiveTimeout", zap.String("device", state.device.Id))
		if state.replyTo != nil {
			ctx.Send(state.replyTo, domain.MonitorConnectResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("transport connect timed out")},
				Accepted:           false,
			})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("energy_monitor@awaitTransportConnect: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state EMAwaitConnectState) OnEnterAction(ctx actor.Context) EMAwaitConnectState {
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

// EMAwaitInitialReadState runs the first full read after a device comes up.
// The read populates the snapshot only; trackers and threshold checks start
// with the first live notification. A failed read still completes the
// bring-up since the link itself is established.
type EMAwaitInitialReadState struct {
	ActorState
	actor   *EnergyMonitorActor
	device  domain.Device
	replyTo *actor.PID
}

func (state EMAwaitInitialReadState) Name() string {
	return "awaitInitialRead"
}

func (state EMAwaitInitialReadState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportReadAllResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Warn("energy_monitor@awaitInitialRead: read failed",
				zap.String("device", state.device.Id), zap.Error(msg.GetResponseError()))
		}
		state.actor.applyInitialRead(state.device.Id, msg.Values, time.Now())
		state.finish(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Warn("energy_monitor@awaitInitialRead: ReceiveTimeout", zap.String("device", state.device.Id))
		state.actor.applyInitialRead(state.device.Id, nil, time.Now())
		state.finish(ctx)
	default:
		state.actor.logger.Debug("energy_monitor@awaitInitialRead: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state EMAwaitInitialReadState) finish(ctx actor.Context) {
	state.actor.completeDeviceUp(ctx, state.device)
	if state.replyTo != nil {
		ctx.Send(state.replyTo, domain.MonitorConnectResponse{Accepted: true})
	}
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

func (state EMAwaitInitialReadState) OnEnterAction(ctx actor.Context) EMAwaitInitialReadState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportReadAllRequest{
			DeviceId:            state.device.Id,
			ServiceUUID:         monitorServiceUUID(state.device),
			CharacteristicUUIDs: ecoble.EnergyTelemetryCharacteristics(),
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

type EMAwaitRefreshReadState struct {
	ActorState
	actor  *EnergyMonitorActor
	device domain.Device
}

func (state EMAwaitRefreshReadState) Name() string {
	return "awaitRefreshRead"
}

func (state EMAwaitRefreshReadState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportReadAllResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Warn("energy_monitor@awaitRefreshRead: read failed",
				zap.String("device", state.device.Id), zap.Error(msg.GetResponseError()))
		} else {
			state.actor.applyValues(ctx, state.device.Id, msg.Values, time.Now())
		}
		state.finish(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Warn("energy_monitor@awaitRefreshRead: ReceiveTimeout", zap.String("device", state.device.Id))
		state.finish(ctx)
	default:
		state.actor.logger.Debug("energy_monitor@awaitRefreshRead: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state EMAwaitRefreshReadState) finish(ctx actor.Context) {
	if device, ok := state.actor.devices[state.device.Id]; ok && device.ConnectionStatus == domain.CONNECTION_STATUS_CONNECTED {
		state.actor.scheduleRefresh(ctx, state.device.Id)
	}
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

func (state EMAwaitRefreshReadState) OnEnterAction(ctx actor.Context) EMAwaitRefreshReadState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportReadAllRequest{
			DeviceId:            state.device.Id,
			ServiceUUID:         monitorServiceUUID(state.device),
			CharacteristicUUIDs: ecoble.EnergyTelemetryCharacteristics(),
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

type EMAwaitDisconnectState struct {
	ActorState
	actor    *EnergyMonitorActor
	deviceId string
	replyTo  *actor.PID
}

func (state EMAwaitDisconnectState) Name() string {
	return "awaitTransportDisconnect"
}

func (state EMAwaitDisconnectState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportDisconnectResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Error("energy_monitor@awaitTransportDisconnect: disconnect failed",
				zap.String("device", state.deviceId), zap.Error(msg.GetResponseError()))
			if state.replyTo != nil {
				ctx.Send(state.replyTo, domain.MonitorDisconnectResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: msg.GetResponseError()},
					Ok:                 false,
				})
			}
		} else {
			state.actor.handleDeviceDown(ctx, state.deviceId)
			if state.replyTo != nil {
				ctx.Send(state.replyTo, domain.MonitorDisconnectResponse{Ok: true})
			}
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Error("energy_monitor@awaitTransportDisconnect: ReceiveTimeout", zap.String("device", state.deviceId))
		if state.replyTo != nil {
			ctx.Send(state.replyTo, domain.MonitorDisconnectResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("transport disconnect timed out")},
				Ok:                 false,
			})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("energy_monitor@awaitTransportDisconnect: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state EMAwaitDisconnectState) OnEnterAction(ctx actor.Context) EMAwaitDisconnectState {
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

// EMAwaitSettingsWriteState applies a settings update only after the device
// accepted the encoded record. A failed write leaves the stored settings
// untouched and reports Ok false.
type EMAwaitSettingsWriteState struct {
	ActorState
	actor    *EnergyMonitorActor
	device   domain.Device
	settings domain.EnergySettings
	replyTo  *actor.PID
}

func (state EMAwaitSettingsWriteState) Name() string {
	return "awaitSettingsWrite"
}

func (state EMAwaitSettingsWriteState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.TransportWriteResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.fail(ctx, msg.GetResponseError())
			return
		}
		state.actor.settings[state.device.Id] = state.settings
		state.actor.persistState(ctx)
		state.actor.publishMonitorEvent(domain.MonitorSettingsChangedEvent{
			MonitorEventMixIn: domain.MonitorEventMixIn{Id: state.device.Id},
			Settings:          state.settings,
		})
		if device, ok := state.actor.devices[state.device.Id]; ok && device.ConnectionStatus == domain.CONNECTION_STATUS_CONNECTED {
			// reporting interval may have changed
			state.actor.scheduleRefresh(ctx, state.device.Id)
		}
		if state.replyTo != nil {
			settings := state.settings
			ctx.Send(state.replyTo, domain.MonitorUpdateSettingsResponse{Ok: true, Settings: &settings})
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.fail(ctx, errors.New("transport write timed out"))
	default:
		state.actor.logger.Debug("energy_monitor@awaitSettingsWrite: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state EMAwaitSettingsWriteState) fail(ctx actor.Context, err error) {
	state.actor.logger.Error("energy_monitor@awaitSettingsWrite: settings write failed",
		zap.String("device", state.device.Id), zap.Error(err))
	if state.replyTo != nil {
		current := state.actor.settingsOrDefault(state.device.Id)
		ctx.Send(state.replyTo, domain.MonitorUpdateSettingsResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Ok:                 false,
			Settings:           &current,
		})
	}
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

func (state EMAwaitSettingsWriteState) OnEnterAction(ctx actor.Context) EMAwaitSettingsWriteState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.transportActor,
		domain.TransportWriteRequest{
			DeviceId:           state.device.Id,
			ServiceUUID:        monitorServiceUUID(state.device),
			CharacteristicUUID: ecoble.CHAR_UUID_ENERGY_SETTINGS,
			Data:               ecoble.EncodeEnergySettings(state.settings.Record()),
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

func (state *EnergyMonitorActor) subscribeTransportEvents(ctx actor.Context) {
	self := ctx.Self()
	system := ctx.ActorSystem()
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		switch value.(type) {
		case domain.TransportDeviceConnected, domain.TransportDeviceDisconnected, domain.TransportDataReceived:
			system.Root.Send(self, value)
		}
	})
}

func (state *EnergyMonitorActor) teardown() {
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

// completeDeviceUp registers the device as connected, announces it together
// with its current snapshot and settings, and arms the periodic refresh.
func (state *EnergyMonitorActor) completeDeviceUp(ctx actor.Context, device domain.Device) {
	device.ConnectionStatus = domain.CONNECTION_STATUS_CONNECTED
	state.devices[device.Id] = device
	settings := state.settingsOrDefault(device.Id)
	state.settings[device.Id] = settings
	if _, ok := state.stats[device.Id]; !ok {
		state.stats[device.Id] = domain.NewEnergyStats()
	}
	state.persistState(ctx)
	mixin := domain.MonitorEventMixIn{Id: device.Id}
	state.publishMonitorEvent(domain.MonitorConnectedEvent{MonitorEventMixIn: mixin, Device: device})
	state.publishMonitorEvent(domain.MonitorReadingUpdatedEvent{MonitorEventMixIn: mixin, Reading: state.readings[device.Id]})
	state.publishMonitorEvent(domain.MonitorSettingsChangedEvent{MonitorEventMixIn: mixin, Settings: settings})
	state.scheduleRefresh(ctx, device.Id)
}

func (state *EnergyMonitorActor) handleDeviceDown(ctx actor.Context, deviceId string) {
	device, ok := state.devices[deviceId]
	if !ok || device.ConnectionStatus != domain.CONNECTION_STATUS_CONNECTED {
		return
	}
	state.logger.Info("energy_monitor: device down", zap.String("device", deviceId))
	device.ConnectionStatus = domain.CONNECTION_STATUS_DISCONNECTED
	state.devices[deviceId] = device
	state.cancelRefresh(deviceId)
	state.persistState(ctx)
	state.publishMonitorEvent(domain.MonitorDisconnectedEvent{
		MonitorEventMixIn: domain.MonitorEventMixIn{Id: deviceId},
	})
}

func (state *EnergyMonitorActor) scheduleRefresh(ctx actor.Context, deviceId string) {
	state.cancelRefresh(deviceId)
	interval := time.Duration(state.settingsOrDefault(deviceId).ReportingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	state.refreshCancels[deviceId] = state.scheduler.RequestOnce(interval, ctx.Self(), monitorRefreshTick{deviceId: deviceId})
}

func (state *EnergyMonitorActor) cancelRefresh(deviceId string) {
	if cancel, ok := state.refreshCancels[deviceId]; ok {
		if cancel != nil {
			cancel()
		}
		delete(state.refreshCancels, deviceId)
	}
}

// applyInitialRead decodes a full read into the snapshot without touching
// trackers or emitting per field events.
func (state *EnergyMonitorActor) applyInitialRead(deviceId string, values map[string][]byte, at time.Time) {
	reading := state.readings[deviceId]
	for charUUID, data := range values {
		if field, ok := ecoble.FieldForCharacteristic(charUUID); ok {
			decodeMonitorField(&reading, field, data)
		}
	}
	reading.Timestamp = at
	state.readings[deviceId] = reading
}

// applyValues runs the decode path for a batch of characteristic values:
// snapshot update, usage tracking, threshold checks, one persist, then the
// resulting events. Fields without a dedicated changed event are folded into
// a single reading update.
func (state *EnergyMonitorActor) applyValues(ctx actor.Context, deviceId string, values map[string][]byte, at time.Time) {
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
		state.publishMonitorEvent(event)
	}
	if snapshot {
		state.publishMonitorEvent(domain.MonitorReadingUpdatedEvent{
			MonitorEventMixIn: domain.MonitorEventMixIn{Id: deviceId},
			Reading:           state.readings[deviceId],
		})
	}
}

func (state *EnergyMonitorActor) applyCharacteristic(deviceId string, charUUID string, data []byte, at time.Time) ([]any, bool) {
	field, ok := ecoble.FieldForCharacteristic(charUUID)
	if !ok {
		return nil, false
	}
	reading := state.readings[deviceId]
	prev := reading
	if !decodeMonitorField(&reading, field, data) {
		return nil, false
	}
	settings := state.settingsOrDefault(deviceId)
	stats := state.statsOrNew(deviceId)
	mixin := domain.MonitorEventMixIn{Id: deviceId}

	var events []any
	snapshot := false
	switch field {
	case ecoble.FIELD_POWER:
		stats = state.tracker.ApplyPowerSample(stats, reading.Power, at)
		events = append(events, domain.PowerChangedEvent{MonitorEventMixIn: mixin, Power: reading.Power})
		// level triggered: every qualifying sample raises the event again
		if settings.EnableNotifications && reading.Power > settings.HighUsageThresholdWatt {
			events = append(events, domain.HighEnergyUsageEvent{
				MonitorEventMixIn: mixin,
				Power:             reading.Power,
				Threshold:         settings.HighUsageThresholdWatt,
			})
		}
	case ecoble.FIELD_ENERGY:
		stats = state.tracker.ApplyEnergyTotal(stats, prev.Energy, reading.Energy, settings.CostPerKwh, at)
		events = append(events, domain.EnergyChangedEvent{MonitorEventMixIn: mixin, Energy: reading.Energy})
	case ecoble.FIELD_APPLIANCE:
		if settings.EnableApplianceDetection {
			stats = state.tracker.ApplyApplianceDetection(stats, prev.Appliance, reading.Appliance)
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

func (state *EnergyMonitorActor) persistState(ctx actor.Context) {
	payload, err := json.Marshal(domain.EnergyMonitorState{
		Readings: state.readings,
		Settings: state.settings,
		Stats:    state.stats,
	})
	if err != nil {
		state.logger.Error("energy_monitor: state marshal failed", zap.Error(err))
		return
	}
	store := state.store
	logger := state.logger
	NewBackgroundTaskErr(ctx, func() error {
		return store.Set(context.Background(), domain.STORE_KEY_ENERGY_MONITOR, payload)
	}).WithTimeout(statePersistTimeout).OnError(func(err error) {
		logger.Error("energy_monitor: state persist failed", zap.Error(err))
	}).Run()
}

func (state *EnergyMonitorActor) publishMonitorEvent(event any) {
	state.eventStream.Publish(event)
}

func (state *EnergyMonitorActor) settingsOrDefault(deviceId string) domain.EnergySettings {
	if settings, ok := state.settings[deviceId]; ok {
		return settings
	}
	return domain.DefaultEnergySettings()
}

func (state *EnergyMonitorActor) statsOrNew(deviceId string) domain.EnergyStats {
	if stats, ok := state.stats[deviceId]; ok {
		return stats
	}
	return domain.NewEnergyStats()
}

func (state *EnergyMonitorActor) isKnown(deviceId string) bool {
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

func decodeMonitorField(reading *domain.EnergyReading, field ecoble.Field, data []byte) bool {
	switch field {
	case ecoble.FIELD_POWER:
		reading.Power = ecoble.DecodePower(data)
	case ecoble.FIELD_VOLTAGE:
		reading.Voltage = ecoble.DecodeVoltage(data)
	case ecoble.FIELD_CURRENT:
		reading.Current = ecoble.DecodeCurrent(data)
	case ecoble.FIELD_ENERGY:
		reading.Energy = ecoble.DecodeEnergyKWh(data)
	case ecoble.FIELD_FREQUENCY:
		reading.Frequency = ecoble.DecodeFrequency(data)
	case ecoble.FIELD_POWER_FACTOR:
		reading.PowerFactor = ecoble.DecodePowerFactor(data)
	case ecoble.FIELD_BATTERY_LEVEL:
		reading.BatteryLevel = ecoble.DecodeBatteryLevel(data)
	case ecoble.FIELD_APPLIANCE:
		reading.Appliance = ecoble.DecodeAppliance(data)
	default:
		return false
	}
	return true
}

func monitorServiceUUID(device domain.Device) string {
	if model, ok := ecoble.EnergyModelFor(device.Metadata.ServiceUUIDs); ok {
		if uuid, ok := ecoble.ServiceUUIDForModel(model); ok {
			return uuid
		}
	}
	return ecoble.SERVICE_UUID_ECO_ENERGY_PRO
}

func loadMonitorState(store port.Store, logger *zap.Logger) domain.EnergyMonitorState {
	loaded := domain.NewEnergyMonitorState()
	data, ok, err := store.Get(context.Background(), domain.STORE_KEY_ENERGY_MONITOR)
	if err != nil {
		logger.Error("energy_monitor: state load failed", zap.Error(err))
		return loaded
	}
	if !ok {
		return loaded
	}
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Error("energy_monitor: state decode failed", zap.Error(err))
		return domain.NewEnergyMonitorState()
	}
	return loaded
}
