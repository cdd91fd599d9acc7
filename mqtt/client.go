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

package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const statusTopic = "bridge/status"

type Client struct {
	URI           *url.URL
	ClientID      string
	Prefix        string
	connection    mqtt.Client
	subscriptions map[string]subscriptionInfo
	subMutex      sync.RWMutex
}

type subscriptionInfo struct {
	qos      byte
	callback MessageHandler
}

type Message mqtt.Message

type MessageHandler func(client *Client, message Message)

func NewClient(uri *url.URL, clientID string, prefix string) (*Client, error) {
	client := Client{
		URI:           uri,
		ClientID:      clientID,
		Prefix:        prefix,
		subscriptions: make(map[string]subscriptionInfo),
	}
	opts, err := createClientOptions(&client)
	if err != nil {
		return nil, err
	}

	opts.SetWill(client.Topic(statusTopic), "offline", 1, true)
	if err := client.connect(opts); err != nil {
		return nil, err
	}

	client.connection.Publish(client.Topic(statusTopic), 1, true, "online")

	return &client, nil
}

// DeterminePrefix returns the topic prefix from the URL path, or fallback
// when the path is empty.
func DeterminePrefix(uri *url.URL, fallback string) string {
	if prefix := strings.Trim(uri.Path, "/"); prefix != "" {
		return prefix
	}
	return fallback
}

func (client *Client) connect(opts *mqtt.ClientOptions) error {
	client.connection = mqtt.NewClient(opts)
	token := client.connection.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	return nil
}

// Close marks the bridge offline and disconnects.
func (client *Client) Close() {
	if client.connection == nil {
		return
	}
	token := client.connection.Publish(client.Topic(statusTopic), 1, true, "offline")
	token.WaitTimeout(time.Second)
	client.connection.Disconnect(250)
}

// Topic prepends the client prefix.
func (client *Client) Topic(topic string) string {
	return fmt.Sprintf("%s/%s", client.Prefix, topic)
}

func (client *Client) PublishMany(topic string, values map[string]interface{}) error {
	for key, val := range values {
		err := client.PublishRaw(client.Topic(topic+"/"+key), val)
		if err != nil {
			return err
		}
	}
	return nil
}

// Publish sends a retained value under the client prefix.
func (client *Client) Publish(topic string, val interface{}) error {
	return client.publish(client.Topic(topic), true, val)
}

// Notify sends a value under the client prefix without retaining it, for
// events and command results that describe a moment rather than state.
func (client *Client) Notify(topic string, val interface{}) error {
	return client.publish(client.Topic(topic), false, val)
}

func (client *Client) PublishRaw(topic string, val interface{}) error {
	return client.publish(topic, true, val)
}

func (client *Client) publish(topic string, retained bool, val interface{}) error {
	payload, err := encodePayload(val)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", topic, err)
	}

	token := client.connection.Publish(topic, 0, retained, payload)
	go func() {
		<-token.Done()
		if token.Error() != nil {
			log.Error(token.Error())
		}
	}()

	return nil
}

func encodePayload(val interface{}) ([]byte, error) {
	switch p := val.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case nil:
		return []byte{}, nil
	}
	return json.Marshal(val)
}

func (client *Client) Subscribe(topic string, qos byte, callback MessageHandler) error {
	full_topic := client.Topic(topic)

	// Store subscription info for automatic re-subscription on reconnect
	client.subMutex.Lock()
	client.subscriptions[full_topic] = subscriptionInfo{
		qos:      qos,
		callback: callback,
	}
	client.subMutex.Unlock()

	token := client.connection.Subscribe(full_topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		callback(client, msg)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	return nil
}

func createClientOptions(client *Client) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()

	port := client.URI.Port()
	if port == "" {
		if client.URI.Scheme == "mqtts" {
			port = "8883"
		} else {
			port = "1883"
		}
	}

	switch client.URI.Scheme {
	case "mqtts":
		tlsConfig, err := tlsConfigFromQuery(client.URI.Query())
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
		opts.AddBroker(fmt.Sprintf("ssl://%s:%s", client.URI.Hostname(), port))
	case "mqtt", "tcp":
		opts.AddBroker(fmt.Sprintf("tcp://%s:%s", client.URI.Hostname(), port))
	default:
		return nil, fmt.Errorf("unsupported MQTT scheme %q", client.URI.Scheme)
	}

	opts.SetUsername(client.URI.User.Username())
	password, _ := client.URI.User.Password()
	opts.SetPassword(password)
	opts.SetClientID(client.ClientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("mqtt connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Warn("mqtt reconnecting")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info("mqtt connected")

		// Republish online status on every connection
		client.connection.Publish(client.Topic(statusTopic), 1, true, "online")

		client.subMutex.RLock()
		defer client.subMutex.RUnlock()

		for fullTopic, sub := range client.subscriptions {
			subInfo := sub
			token := client.connection.Subscribe(fullTopic, subInfo.qos, func(_ mqtt.Client, msg mqtt.Message) {
				subInfo.callback(client, msg)
			})
			token.Wait()
			if err := token.Error(); err != nil {
				log.Errorf("failed to resubscribe to %s: %v", fullTopic, err)
			} else {
				log.Infof("resubscribed to %s", fullTopic)
			}
		}
	})

	return opts, nil
}

func tlsConfigFromQuery(query url.Values) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if query.Get("insecure") == "true" {
		tlsConfig.InsecureSkipVerify = true
	}

	tlsCert := query.Get("tls_cert")
	tlsKey := query.Get("tls_key")
	if tlsCert != "" && tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
		if err != nil {
			return nil, fmt.Errorf("load tls cert and key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if caCert := query.Get("tls_cacert"); caCert != "" {
		caCertData, err := os.ReadFile(caCert)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCertData) {
			return nil, fmt.Errorf("no certificates found in %s", caCert)
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}
