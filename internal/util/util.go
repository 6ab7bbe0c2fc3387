package util

import (
	"github.com/Havanyani/ecocartapp-sub009/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "ecocart",
		},
		Bluetooth: config.BluetoothConfig{
			Enabled: false,
		},
		Store: config.StoreConfig{
			Path: ":memory:",
		},
		Port: 8080,
	}
}
