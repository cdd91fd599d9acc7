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

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported          = errors.New("request not supported")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrUnrecognizedOwnedCode = errors.New("unrecognized owned request code")
	ErrConnectionClosed      = errors.New("connection closed")
	ErrTimeout               = errors.New("timeout waiting for response")
	ErrInvalidArgument       = errors.New("invalid argument")
)

// CommandError carries the non-zero status of a solicited reply.
type CommandError struct {
	Request RequestCode
	Status  int32
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Request, e.Status)
}

func malformed(field string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrMalformedResponse, field)
	}
	return fmt.Errorf("%w: failed to read %s: %v", ErrMalformedResponse, field, err)
}
