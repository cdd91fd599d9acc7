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

package ril

import log "github.com/sirupsen/logrus"

// CarrierIdentifier names a carrier in an allow list.
type CarrierIdentifier struct {
	MCC  string `json:"mcc"`
	MNC  string `json:"mnc"`
	SPN  string `json:"spn,omitempty"`
	IMSI string `json:"imsi,omitempty"`
	GID1 string `json:"gid1,omitempty"`
	GID2 string `json:"gid2,omitempty"`
}

// SetAllowedCarriers is not implemented by this firmware. cb receives
// ErrNotSupported before SetAllowedCarriers returns.
func (r *RIL) SetAllowedCarriers(carriers []CarrierIdentifier, cb ResultFunc) {
	log.Infof("setAllowedCarriers: not supported (%d carriers)", len(carriers))
	if cb != nil {
		cb(nil, ErrNotSupported)
	}
}

// GetAllowedCarriers is not implemented by this firmware. cb receives
// ErrNotSupported before GetAllowedCarriers returns.
func (r *RIL) GetAllowedCarriers(cb ResultFunc) {
	log.Info("getAllowedCarriers: not supported")
	if cb != nil {
		cb(nil, ErrNotSupported)
	}
}
