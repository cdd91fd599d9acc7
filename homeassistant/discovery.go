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

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Publisher sends to an absolute topic.
type Publisher interface {
	PublishRaw(topic string, val interface{}) error
}

// PublishDiscovery sends Home Assistant MQTT discovery messages
// Waits for data to be ready before publishing
func PublishDiscovery(publisher Publisher, deviceID, prefix string, ready <-chan bool) int {
	log.Infof("Publishing Home Assistant discovery messages for %s", deviceID)

	if ready != nil {
		log.Debug("Waiting for initial data before publishing discovery messages...")
		<-ready
		log.Debug("Initial data ready, publishing discovery messages")
	}

	devBlock := createDeviceBlock(deviceID)

	return publishEntities(publisher, deviceID, prefix, devBlock)
}

func createDeviceBlock(deviceID string) map[string]interface{} {
	return map[string]interface{}{
		"ids":  []string{fmt.Sprintf("ril_%s", deviceID)},
		"name": fmt.Sprintf("Modem (%s)", deviceID),
		"sw":   "legacy-ril",
	}
}

func publishEntities(publisher Publisher, deviceID, prefix string, devBlock map[string]interface{}) int {
	entities := AllEntities()
	published := 0

	for _, entity := range entities {
		config := entity.Build(deviceID, prefix, devBlock)
		topic := entity.GetDiscoveryTopic(deviceID)

		if err := publisher.PublishRaw(topic, config); err != nil {
			log.Errorf("Error publishing discovery message for %s (%s): %v", entity.Name, entity.Key, err)
		} else {
			published++
			log.Debugf("Published discovery for %s at %s", entity.Name, topic)
		}
	}

	log.Infof("Published %d entity discovery messages", published)
	return published
}
