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

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	healthz "github.com/klyve/go-healthz"
	"github.com/mlipscombe/legacy-ril/config"
	"github.com/mlipscombe/legacy-ril/homeassistant"
	"github.com/mlipscombe/legacy-ril/mqtt"
	"github.com/mlipscombe/legacy-ril/phonebook"
	"github.com/mlipscombe/legacy-ril/ril"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// modemLabel names a modem endpoint for topics and metric labels:
// "tcp://10.0.0.2:6000" -> "10.0.0.2_6000", "unix:///dev/socket/rild" -> "rild".
func modemLabel(uri *url.URL) string {
	if uri.Host != "" {
		return strings.ReplaceAll(uri.Host, ":", "_")
	}
	if base := path.Base(uri.Path); base != "." && base != "/" {
		return base
	}
	return "modem"
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.SetupLogging()

	if cfg.Bind != "false" {
		go func(listenAddress string) {
			log.Infof("Starting metrics server on %s", listenAddress)
			instance := healthz.Instance{
				Logger:   log.New(),
				Detailed: true,
			}

			http.Handle("/metrics", promhttp.Handler())
			http.Handle("/healthz", instance.Healthz())
			http.Handle("/liveness", instance.Liveness())

			if err := http.ListenAndServe(listenAddress, nil); err != nil {
				log.Errorf("HTTP server error: %v", err)
			}
		}(cfg.Bind)
	}

	uri, err := url.Parse(cfg.ModemURL)
	if err != nil {
		log.Fatalf("Invalid modem URL %s: %v", cfg.ModemURL, err)
	}
	radio, err := ril.Dial(uri, cfg.Timeout)
	if err != nil {
		log.Fatalf("Failed to connect to modem at %s: %v", cfg.ModemURL, err)
	}
	defer radio.Close()

	label := modemLabel(uri)
	log.Infof("Connected to modem at %s (%s)", cfg.ModemURL, label)

	if cfg.MQTTURL != "false" {
		mqttUrl, err := url.Parse(cfg.MQTTURL)
		if err != nil {
			log.Fatalf("Invalid MQTT URL: %s", cfg.MQTTURL)
		}

		mqttPrefix := mqtt.DeterminePrefix(mqttUrl, fmt.Sprintf("ril/%s", label))
		mqttClient, err := mqtt.NewClient(mqttUrl, fmt.Sprintf("ril-bridge-%s", label), mqttPrefix)
		if err != nil {
			log.Fatalf("Failed to create MQTT client: %s", err)
		}
		defer mqttClient.Close()

		log.Infof("Connected to MQTT broker %s (publishing on \"%s\")", mqttUrl.Host, mqttPrefix)

		b := &bridge{modem: radio, out: mqttClient, timeout: cfg.Timeout}
		commandBase := mqttClient.Topic("command")
		if err := mqttClient.Subscribe("command/#", 1, func(client *mqtt.Client, msg mqtt.Message) {
			command := parseCommandTopic(commandBase, msg.Topic())
			go b.execute(command, msg.Payload())
		}); err != nil {
			log.Errorf("Failed to subscribe to command topics: %v", err)
		}

		events, _ := radio.Subscribe(cfg.EventBuffer)
		go b.forwardEvents(events)
		go b.execute("atr", nil)

		var phonebookReady chan bool
		if cfg.Phonebook {
			phonebookReady = phonebook.StartPhonebookMonitor(radio, mqttClient, label, cfg.EventBuffer)
		}

		if cfg.HADiscovery {
			go homeassistant.PublishDiscovery(mqttClient, label, mqttPrefix, phonebookReady)
		}
	}

	<-radio.Done()
	if err := radio.Err(); err != nil {
		log.Errorf("Modem connection lost: %v", err)
		os.Exit(1)
	}
}
