package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/config"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
)

// Command kinds produced by ParseMQTTCommand.
const (
	COMMAND_SETTINGS    = "settings"
	COMMAND_RESET_STATS = "reset_stats"
	COMMAND_EMPTIED     = "emptied"
	COMMAND_CALIBRATE   = "calibrate"
	COMMAND_SWITCH      = "switch"
	COMMAND_NUMBER      = "number"
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("ecocart_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:              mqtt.NewClient(opts),
		cfg:                 cfg.MQTT,
		settingsRegexp:      settingsCommandExtractor(cfg.MQTT.BaseTopic),
		statsResetRegexp:    statsResetCommandExtractor(cfg.MQTT.BaseTopic),
		emptiedRegexp:       emptiedCommandExtractor(cfg.MQTT.BaseTopic),
		calibrateRegexp:     calibrateCommandExtractor(cfg.MQTT.BaseTopic),
		switchCommandRegexp: switchCommandExtractor(cfg.MQTT.BaseTopic),
		numberCommandRegexp: numberCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

type MQTTClient struct {
	client              mqtt.Client
	cfg                 config.MQTTConfig
	settingsRegexp      *regexp.Regexp
	statsResetRegexp    *regexp.Regexp
	emptiedRegexp       *regexp.Regexp
	calibrateRegexp     *regexp.Regexp
	switchCommandRegexp *regexp.Regexp
	numberCommandRegexp *regexp.Regexp
}

// ParsedMQTTCommand is a matched command topic. Entity is only set for
// switch and number commands.
type ParsedMQTTCommand struct {
	Family   ecoble.Family
	DeviceId string
	Command  string
	Entity   string
	Payload  string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

// SensorStateTopic doubles as the telemetry topic: sensor ids are the
// telemetry field slugs.
func (c *MQTTClient) SensorStateTopic(family ecoble.Family, deviceId string, sensorId string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.baseTopic(), family, deviceId, sensorId)
}

func (c *MQTTClient) TelemetryTopic(family ecoble.Family, deviceId string, field ecoble.Field) string {
	return c.SensorStateTopic(family, deviceId, field.String())
}

func (c *MQTTClient) EventTopic(family ecoble.Family, deviceId string, kind string) string {
	return fmt.Sprintf("%s/%s/%s/event/%s", c.baseTopic(), family, deviceId, kind)
}

func (c *MQTTClient) AvailabilityTopic(family ecoble.Family, deviceId string) string {
	return fmt.Sprintf("%s/%s/%s/availability", c.baseTopic(), family, deviceId)
}

func (c *MQTTClient) EntityStateTopic(family ecoble.Family, deviceId string, entityId string) string {
	return fmt.Sprintf("%s/%s/%s/%s/state", c.baseTopic(), family, deviceId, entityId)
}

func (c *MQTTClient) SwitchCommandTopic(family ecoble.Family, deviceId string, entityId string) string {
	return fmt.Sprintf("%s/%s/%s/%s/command", c.baseTopic(), family, deviceId, entityId)
}

func (c *MQTTClient) NumberCommandTopic(family ecoble.Family, deviceId string, entityId string) string {
	return fmt.Sprintf("%s/%s/%s/%s/set", c.baseTopic(), family, deviceId, entityId)
}

func (c *MQTTClient) SettingsCommandTopic(family ecoble.Family, deviceId string) string {
	return fmt.Sprintf("%s/%s/%s/settings/set", c.baseTopic(), family, deviceId)
}

func (c *MQTTClient) StatsResetCommandTopic(deviceId string) string {
	return fmt.Sprintf("%s/%s/%s/stats/reset", c.baseTopic(), ecoble.FAMILY_MONITOR, deviceId)
}

func (c *MQTTClient) EmptiedCommandTopic(deviceId string) string {
	return fmt.Sprintf("%s/%s/%s/emptied", c.baseTopic(), ecoble.FAMILY_BIN, deviceId)
}

func (c *MQTTClient) CalibrateCommandTopic(deviceId string) string {
	return fmt.Sprintf("%s/%s/%s/calibrate", c.baseTopic(), ecoble.FAMILY_BIN, deviceId)
}

// ParseMQTTCommand matches a message against the command topics. Parse order
// matters: settings/set would also match the number extractor.
func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	parsers := []func(mqtt.Message) (*ParsedMQTTCommand, error){
		c.parseSettingsMQTTCommand,
		c.parseStatsResetMQTTCommand,
		c.parseEmptiedMQTTCommand,
		c.parseCalibrateMQTTCommand,
		c.parseSwitchMQTTCommand,
		c.parseNumberMQTTCommand,
	}
	var err error
	for _, parse := range parsers {
		var cmd *ParsedMQTTCommand
		cmd, err = parse(msg)
		if err == nil {
			return cmd, nil
		}
	}
	return nil, err
}

func (c *MQTTClient) parseSettingsMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.settingsRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 3 {
		return nil, errors.New("invalid settings command")
	}
	return &ParsedMQTTCommand{
		Family:   ecoble.Family(matches[0][1]),
		DeviceId: matches[0][2],
		Command:  COMMAND_SETTINGS,
		Payload:  string(msg.Payload()),
	}, nil
}

func (c *MQTTClient) parseStatsResetMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.statsResetRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 2 {
		return nil, errors.New("invalid stats reset command")
	}
	return &ParsedMQTTCommand{
		Family:   ecoble.FAMILY_MONITOR,
		DeviceId: matches[0][1],
		Command:  COMMAND_RESET_STATS,
	}, nil
}

func (c *MQTTClient) parseEmptiedMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.emptiedRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 2 {
		return nil, errors.New("invalid emptied command")
	}
	return &ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: matches[0][1],
		Command:  COMMAND_EMPTIED,
	}, nil
}

func (c *MQTTClient) parseCalibrateMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.calibrateRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 2 {
		return nil, errors.New("invalid calibrate command")
	}
	return &ParsedMQTTCommand{
		Family:   ecoble.FAMILY_BIN,
		DeviceId: matches[0][1],
		Command:  COMMAND_CALIBRATE,
		Payload:  string(msg.Payload()),
	}, nil
}

func (c *MQTTClient) parseSwitchMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.switchCommandRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 4 {
		return nil, errors.New("invalid switch command")
	}
	return &ParsedMQTTCommand{
		Family:   ecoble.Family(matches[0][1]),
		DeviceId: matches[0][2],
		Entity:   matches[0][3],
		Command:  COMMAND_SWITCH,
		Payload:  string(msg.Payload()),
	}, nil
}

func (c *MQTTClient) parseNumberMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	matches := c.numberCommandRegexp.FindAllStringSubmatch(msg.Topic(), 1)
	if len(matches) == 0 || len(matches[0]) != 4 {
		return nil, errors.New("invalid number command")
	}

	// try to parse a valid number
	if _, err := strconv.ParseFloat(string(msg.Payload()), 64); err != nil {
		return nil, err
	}

	return &ParsedMQTTCommand{
		Family:   ecoble.Family(matches[0][1]),
		DeviceId: matches[0][2],
		Entity:   matches[0][3],
		Command:  COMMAND_NUMBER,
		Payload:  string(msg.Payload()),
	}, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT unsubscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) commandTopic() string {
	return fmt.Sprintf("%s/#", c.baseTopic())
}

// Device ids are BLE addresses, so the device segment allows colons.
func settingsCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/(monitor|bin)/([a-zA-Z0-9:_-]+)/settings/set$", baseTopic))
}

func statsResetCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/monitor/([a-zA-Z0-9:_-]+)/stats/reset$", baseTopic))
}

func emptiedCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/bin/([a-zA-Z0-9:_-]+)/emptied$", baseTopic))
}

func calibrateCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/bin/([a-zA-Z0-9:_-]+)/calibrate$", baseTopic))
}

func switchCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/(monitor|bin)/([a-zA-Z0-9:_-]+)/([a-zA-Z0-9_]+)/command$", baseTopic))
}

func numberCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/(monitor|bin)/([a-zA-Z0-9:_-]+)/([a-zA-Z0-9_]+)/set$", baseTopic))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
