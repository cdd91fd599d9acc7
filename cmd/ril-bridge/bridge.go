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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mlipscombe/legacy-ril/ril"
	log "github.com/sirupsen/logrus"
)

// modem is the part of *ril.RIL the bridge drives.
type modem interface {
	GetAtr(ctx context.Context) (string, error)
	OpenLogicalChannel(ctx context.Context, aid string, p2 byte) ([]int32, error)
	GetAdnRecord(ctx context.Context) ([]int32, error)
	UpdateAdnRecord(ctx context.Context, record *ril.AdnRecord) ([]int32, error)
}

type notifier interface {
	Publish(topic string, val interface{}) error
	Notify(topic string, val interface{}) error
}

var errUnknownCommand = errors.New("unknown command")

// bridge runs MQTT commands against the modem and reports results and
// events back.
type bridge struct {
	modem   modem
	out     notifier
	timeout time.Duration
}

type commandResult struct {
	OK     bool        `json:"ok"`
	Value  interface{} `json:"value,omitempty"`
	Error  string      `json:"error,omitempty"`
	Status *int32      `json:"status,omitempty"`
}

type openChannelCommand struct {
	AID string `json:"aid"`
	P2  byte   `json:"p2"`
}

type eventMessage struct {
	Code   ril.EventCode `json:"code"`
	Name   string        `json:"name"`
	Result *ril.Result   `json:"result,omitempty"`
}

// parseCommandTopic returns the command name below base, e.g.
// "ril/modem0/command/channel/open" -> "channel/open".
func parseCommandTopic(base string, topic string) string {
	command, ok := strings.CutPrefix(topic, base+"/")
	if !ok {
		return ""
	}
	return command
}

// execute runs command and publishes the outcome on result/<command>. A
// successful ATR read is also retained on state/atr.
func (b *bridge) execute(command string, payload []byte) {
	result := b.run(command, payload)
	if !result.OK {
		log.Warnf("command %s failed: %s", command, result.Error)
	} else {
		log.Infof("command %s: %v", command, result.Value)
	}
	if command == "atr" && result.OK {
		if err := b.out.Publish("state/atr", result.Value); err != nil {
			log.Errorf("failed to publish ATR: %v", err)
		}
	}
	if err := b.out.Notify("result/"+command, result); err != nil {
		log.Errorf("failed to publish result of %s: %v", command, err)
	}
}

func (b *bridge) run(command string, payload []byte) commandResult {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var (
		value interface{}
		err   error
	)
	switch command {
	case "atr":
		value, err = b.modem.GetAtr(ctx)
	case "channel/open":
		var cmd openChannelCommand
		if err = json.Unmarshal(payload, &cmd); err != nil {
			err = fmt.Errorf("%w: %v", ril.ErrInvalidArgument, err)
			break
		}
		value, err = b.modem.OpenLogicalChannel(ctx, cmd.AID, cmd.P2)
	case "phonebook/read":
		value, err = b.modem.GetAdnRecord(ctx)
	case "phonebook/update":
		var record ril.AdnRecord
		if err = json.Unmarshal(payload, &record); err != nil {
			err = fmt.Errorf("%w: %v", ril.ErrInvalidArgument, err)
			break
		}
		value, err = b.modem.UpdateAdnRecord(ctx, &record)
	default:
		err = fmt.Errorf("%w: %q", errUnknownCommand, command)
	}
	if err != nil {
		return failure(err)
	}
	return commandResult{OK: true, Value: value}
}

func failure(err error) commandResult {
	result := commandResult{Error: err.Error()}
	var cmdErr *ril.CommandError
	if errors.As(err, &cmdErr) {
		status := cmdErr.Status
		result.Status = &status
	}
	return result
}

// forwardEvents publishes every event on event/<code> until the channel
// closes.
func (b *bridge) forwardEvents(events <-chan ril.Event) {
	for event := range events {
		msg := eventMessage{Code: event.Code, Name: event.Code.String(), Result: event.Result}
		if err := b.out.Notify(fmt.Sprintf("event/%d", int32(event.Code)), msg); err != nil {
			log.Errorf("failed to publish %s: %v", event.Code, err)
		}
	}
}
