/*
 * This file is part of the legacy-ril distribution (https://github.com/mlipscombe/legacy-ril).
 * Copyright (c) 2021 Mark Lipscombe.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, version 3.
 *
 * This program is distributed in the hope that it will be useful, but
 * WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
 * General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <http://www.gnu.org/licenses/>.
 */

package homeassistant

import "fmt"

// EntityType represents the type of Home Assistant entity
type EntityType string

const (
	Sensor       EntityType = "sensor"
	Button       EntityType = "button"
	BinarySensor EntityType = "binary_sensor"
)

// EntityConfig represents a Home Assistant entity configuration
type EntityConfig struct {
	Key            string
	Name           string
	EntityType     EntityType
	EntityCategory string
	DeviceClass    string
	Icon           string
	StateTopic     string
	ValueTemplate  string
	CommandTopic   string
	PayloadPress   string
	PayloadOn      string
	PayloadOff     string
}

// AllEntities lists what the bridge exposes.
func AllEntities() []EntityConfig {
	return []EntityConfig{
		{
			Key:            "bridge_status",
			Name:           "Bridge",
			EntityType:     BinarySensor,
			EntityCategory: "diagnostic",
			DeviceClass:    "connectivity",
			StateTopic:     "bridge/status",
			PayloadOn:      "online",
			PayloadOff:     "offline",
		},
		{
			Key:            "sim_atr",
			Name:           "SIM ATR",
			EntityType:     Sensor,
			EntityCategory: "diagnostic",
			Icon:           "mdi:sim",
			StateTopic:     "state/atr",
		},
		{
			Key:        "phonebook_status",
			Name:       "Phonebook",
			EntityType: Sensor,
			Icon:       "mdi:card-account-phone",
			StateTopic: "phonebook/status",
		},
		{
			Key:        "phonebook_count",
			Name:       "Phonebook records",
			EntityType: Sensor,
			Icon:       "mdi:contacts",
			StateTopic: "phonebook/count",
		},
		{
			Key:          "phonebook_reload",
			Name:         "Reload phonebook",
			EntityType:   Button,
			Icon:         "mdi:reload",
			CommandTopic: "command/phonebook/read",
			PayloadPress: "{}",
		},
		{
			Key:            "sim_atr_read",
			Name:           "Read SIM ATR",
			EntityType:     Button,
			EntityCategory: "diagnostic",
			CommandTopic:   "command/atr",
			PayloadPress:   "{}",
		},
	}
}

// Build creates the MQTT discovery message for this entity
func (e *EntityConfig) Build(deviceID, prefix string, devBlock map[string]interface{}) map[string]interface{} {
	config := map[string]interface{}{
		"name":    e.Name,
		"uniq_id": fmt.Sprintf("ril_%s_%s", deviceID, e.Key),
		"avty_t":  fmt.Sprintf("%s/bridge/status", prefix),
		"dev":     devBlock,
	}

	if e.EntityCategory != "" {
		config["entity_category"] = e.EntityCategory
	}
	if e.DeviceClass != "" {
		config["device_class"] = e.DeviceClass
	}
	if e.Icon != "" {
		config["ic"] = e.Icon
	}
	if e.StateTopic != "" {
		config["stat_t"] = resolveTopic(prefix, e.StateTopic)
	}
	if e.ValueTemplate != "" {
		config["val_tpl"] = e.ValueTemplate
	}
	if e.CommandTopic != "" {
		config["cmd_t"] = resolveTopic(prefix, e.CommandTopic)
	}

	switch e.EntityType {
	case Button:
		if e.PayloadPress != "" {
			config["payload_press"] = e.PayloadPress
		}
	case BinarySensor:
		if e.PayloadOn != "" {
			config["pl_on"] = e.PayloadOn
		}
		if e.PayloadOff != "" {
			config["pl_off"] = e.PayloadOff
		}
	}

	return config
}

// resolveTopic treats a leading '/' as an absolute topic, anything else as
// relative to prefix.
func resolveTopic(prefix, topic string) string {
	if topic[0] == '/' {
		return topic[1:]
	}
	return fmt.Sprintf("%s/%s", prefix, topic)
}

// GetDiscoveryTopic returns the MQTT discovery topic for this entity
func (e *EntityConfig) GetDiscoveryTopic(deviceID string) string {
	return fmt.Sprintf("homeassistant/%s/ril_%s/%s/config", e.EntityType, deviceID, e.Key)
}
