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

package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Frame layout: 4-byte big-endian length, then the record.
const (
	LengthSize          = 4
	DefaultMaxFrameSize = 128 * 1024
	DefaultBaudRate     = 115200
)

var (
	ErrFrameTooLarge     = errors.New("frame too large")
	ErrUnsupportedScheme = errors.New("unsupported modem scheme")
)

// Conn frames records over a byte stream. Reads must come from a single
// goroutine; writes may come from any.
type Conn struct {
	MaxFrameSize int

	rw      io.ReadWriteCloser
	reader  *bufio.Reader
	writeMu sync.Mutex
}

func New(rw io.ReadWriteCloser) *Conn {
	return &Conn{
		MaxFrameSize: DefaultMaxFrameSize,
		rw:           rw,
		reader:       bufio.NewReader(rw),
	}
}

// Dial opens a modem endpoint: unix:///path/to/socket, tcp://host:port or
// serial:///dev/ttyX?baud=115200.
func Dial(uri *url.URL, timeout time.Duration) (*Conn, error) {
	switch uri.Scheme {
	case "unix":
		c, err := net.DialTimeout("unix", uri.Path, timeout)
		if err != nil {
			return nil, err
		}
		return New(c), nil
	case "tcp":
		c, err := net.DialTimeout("tcp", uri.Host, timeout)
		if err != nil {
			return nil, err
		}
		return New(c), nil
	case "serial":
		baud := DefaultBaudRate
		if raw := uri.Query().Get("baud"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid baud rate %q: %w", raw, err)
			}
			baud = v
		}
		port, err := serial.Open(uri.Path, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", uri.Path, err)
		}
		log.Debugf("opened %s at %d baud", uri.Path, baud)
		return New(port), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri.Scheme)
}

// ReadFrame blocks until one complete record is available.
func (c *Conn) ReadFrame() ([]byte, error) {
	var header [LengthSize]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if uint64(n) > uint64(c.MaxFrameSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(c.reader, frame); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}
	return frame, nil
}

func (c *Conn) WriteFrame(frame []byte) error {
	if len(frame) > c.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	buf := make([]byte, LengthSize+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[LengthSize:], frame)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.rw.Write(buf)
	return err
}

func (c *Conn) Close() error {
	return c.rw.Close()
}
