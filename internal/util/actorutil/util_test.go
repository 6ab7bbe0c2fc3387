package actorutil

import (
	"testing"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/internal/mqtt"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsCommandToMonitorPatch(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: "AA:BB",
		Command:  mqtt.COMMAND_SETTINGS,
		Payload:  `{"highUsageThreshold":2000,"enableNotifications":false}`,
	})
	require.NoError(t, err)

	update, ok := req.(domain.MonitorUpdateSettingsRequest)
	require.True(t, ok)
	assert.Equal("AA:BB", update.DeviceId)
	require.NotNil(t, update.Patch.HighUsageThresholdWatt)
	assert.Equal(2000.0, *update.Patch.HighUsageThresholdWatt)
	require.NotNil(t, update.Patch.EnableNotifications)
	assert.False(*update.Patch.EnableNotifications)
	assert.Nil(update.Patch.StandbyThresholdWatt)
}

func TestSettingsCommandToBinPatch(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: "CC:DD",
		Command:  mqtt.COMMAND_SETTINGS,
		Payload:  `{"fullThreshold":90}`,
	})
	require.NoError(t, err)

	update, ok := req.(domain.BinUpdateSettingsRequest)
	require.True(t, ok)
	assert.Equal("CC:DD", update.DeviceId)
	require.NotNil(t, update.Patch.FullThresholdPercent)
	assert.Equal(90, *update.Patch.FullThresholdPercent)
}

func TestSettingsCommandBadPayload(t *testing.T) {

	assert := assert.New(t)

	_, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: "AA:BB",
		Command:  mqtt.COMMAND_SETTINGS,
		Payload:  "not json",
	})
	assert.Error(err)
}

func TestSwitchCommandToggles(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: "AA:BB",
		Command:  mqtt.COMMAND_SWITCH,
		Entity:   domain.SWITCH_ID_NOTIFICATIONS,
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	})
	require.NoError(t, err)
	update, ok := req.(domain.MonitorUpdateSettingsRequest)
	require.True(t, ok)
	require.NotNil(t, update.Patch.EnableNotifications)
	assert.True(*update.Patch.EnableNotifications)

	req, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: "CC:DD",
		Command:  mqtt.COMMAND_SWITCH,
		Entity:   domain.SWITCH_ID_NOTIFY_WHEN_FULL,
		Payload:  mqtt.MQTT_PAYLOAD_OFF,
	})
	require.NoError(t, err)
	binUpdate, ok := req.(domain.BinUpdateSettingsRequest)
	require.True(t, ok)
	require.NotNil(t, binUpdate.Patch.NotifyWhenFull)
	assert.False(*binUpdate.Patch.NotifyWhenFull)
}

func TestNumberCommandThresholds(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: "AA:BB",
		Command:  mqtt.COMMAND_NUMBER,
		Entity:   domain.INPUT_NUMBER_ID_HIGH_USAGE_THRESHOLD,
		Payload:  "2500",
	})
	require.NoError(t, err)
	update, ok := req.(domain.MonitorUpdateSettingsRequest)
	require.True(t, ok)
	require.NotNil(t, update.Patch.HighUsageThresholdWatt)
	assert.Equal(2500.0, *update.Patch.HighUsageThresholdWatt)

	req, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: "CC:DD",
		Command:  mqtt.COMMAND_NUMBER,
		Entity:   domain.INPUT_NUMBER_ID_FULL_THRESHOLD,
		Payload:  "85.0",
	})
	require.NoError(t, err)
	binUpdate, ok := req.(domain.BinUpdateSettingsRequest)
	require.True(t, ok)
	require.NotNil(t, binUpdate.Patch.FullThresholdPercent)
	assert.Equal(85, *binUpdate.Patch.FullThresholdPercent)
}

func TestNumberCommandOutOfRangeIgnored(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: "CC:DD",
		Command:  mqtt.COMMAND_NUMBER,
		Entity:   domain.INPUT_NUMBER_ID_FULL_THRESHOLD,
		Payload:  "150",
	})
	assert.NoError(err)
	assert.Nil(req)
}

func TestPlainCommands(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: "AA:BB",
		Command:  mqtt.COMMAND_RESET_STATS,
	})
	require.NoError(t, err)
	assert.Equal(domain.MonitorResetStatsRequest{DeviceId: "AA:BB"}, req)

	req, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: "CC:DD",
		Command:  mqtt.COMMAND_EMPTIED,
	})
	require.NoError(t, err)
	assert.Equal(domain.BinEmptiedRequest{DeviceId: "CC:DD"}, req)

	req, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: "CC:DD",
		Command:  mqtt.COMMAND_CALIBRATE,
	})
	require.NoError(t, err)
	assert.Equal(domain.BinCalibrateRequest{DeviceId: "CC:DD"}, req)
}

func TestUnknownEntityIgnored(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: "AA:BB",
		Command:  mqtt.COMMAND_SWITCH,
		Entity:   "mystery",
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	})
	assert.NoError(err)
	assert.Nil(req)
}
