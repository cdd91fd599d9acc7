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
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Parcel field sizes
const (
	Int32Size    = 4
	charSize     = 2
	absentString = -1
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Parcel is a flat little-endian buffer with a read cursor. Writes always
// append; reads advance the cursor and never run past the end.
type Parcel struct {
	data []byte
	pos  int
}

func NewParcel(data []byte) *Parcel {
	return &Parcel{data: data}
}

func (p *Parcel) Bytes() []byte {
	return p.data
}

func (p *Parcel) Position() int {
	return p.pos
}

// SetPosition moves the read cursor, clamped to the buffer.
func (p *Parcel) SetPosition(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(p.data) {
		pos = len(p.data)
	}
	p.pos = pos
}

// DataAvail is the number of unread bytes.
func (p *Parcel) DataAvail() int {
	return len(p.data) - p.pos
}

// Remaining returns a copy of the unread bytes and consumes them.
func (p *Parcel) Remaining() []byte {
	out := make([]byte, p.DataAvail())
	copy(out, p.data[p.pos:])
	p.pos = len(p.data)
	return out
}

func (p *Parcel) WriteInt32(v int32) {
	p.data = binary.LittleEndian.AppendUint32(p.data, uint32(v))
}

func (p *Parcel) WriteRaw(b []byte) {
	p.data = append(p.data, b...)
}

// WriteString writes s as a length-prefixed UTF-16 string. A nil s is
// written as the absent sentinel. s must be valid UTF-8.
func (p *Parcel) WriteString(s *string) error {
	if s == nil {
		p.WriteInt32(absentString)
		return nil
	}
	if !utf8.ValidString(*s) {
		return fmt.Errorf("%w: string %q is not valid UTF-8", ErrInvalidArgument, *s)
	}
	encoded, err := utf16le.NewEncoder().String(*s)
	if err != nil {
		return fmt.Errorf("failed to encode string %q: %w", *s, err)
	}
	p.WriteInt32(int32(len(encoded) / charSize))
	p.data = append(p.data, encoded...)
	p.data = append(p.data, 0, 0)
	p.pad()
	return nil
}

// WriteStringValue writes a present string.
func (p *Parcel) WriteStringValue(s string) error {
	return p.WriteString(&s)
}

func (p *Parcel) pad() {
	for len(p.data)%Int32Size != 0 {
		p.data = append(p.data, 0)
	}
}

func (p *Parcel) ReadInt32(field string) (int32, error) {
	if p.DataAvail() < Int32Size {
		return 0, malformed(field, fmt.Errorf("need %d bytes, have %d", Int32Size, p.DataAvail()))
	}
	v := int32(binary.LittleEndian.Uint32(p.data[p.pos:]))
	p.pos += Int32Size
	return v, nil
}

// ReadCount reads a repeat count, rejecting negative values.
func (p *Parcel) ReadCount(field string) (int, error) {
	n, err := p.ReadInt32(field)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, malformed(field, fmt.Errorf("negative count %d", n))
	}
	return int(n), nil
}

// ReadString reads a length-prefixed UTF-16 string. The absent sentinel
// yields nil.
func (p *Parcel) ReadString(field string) (*string, error) {
	n, err := p.ReadInt32(field)
	if err != nil {
		return nil, err
	}
	if n == absentString {
		return nil, nil
	}
	if n < 0 {
		return nil, malformed(field, fmt.Errorf("invalid string length %d", n))
	}
	if int(n) > p.DataAvail()/charSize {
		return nil, malformed(field, fmt.Errorf("string length %d exceeds %d available bytes", n, p.DataAvail()))
	}
	extent := padded((int(n) + 1) * charSize)
	if extent > p.DataAvail() {
		return nil, malformed(field, fmt.Errorf("need %d bytes, have %d", extent, p.DataAvail()))
	}
	raw := p.data[p.pos : p.pos+int(n)*charSize]
	if err := checkSurrogates(raw); err != nil {
		return nil, malformed(field, err)
	}
	decoded, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, malformed(field, err)
	}
	p.pos += extent
	s := string(decoded)
	return &s, nil
}

// checkSurrogates rejects unpaired surrogates, which the decoder would
// otherwise replace with U+FFFD.
func checkSurrogates(raw []byte) error {
	for i := 0; i < len(raw); i += charSize {
		unit := rune(binary.LittleEndian.Uint16(raw[i:]))
		if !utf16.IsSurrogate(unit) {
			continue
		}
		if unit >= 0xdc00 || i+charSize >= len(raw) {
			return fmt.Errorf("unpaired surrogate %#04x at unit %d", unit, i/charSize)
		}
		next := rune(binary.LittleEndian.Uint16(raw[i+charSize:]))
		if utf16.DecodeRune(unit, next) == utf8.RuneError {
			return fmt.Errorf("unpaired surrogate %#04x at unit %d", unit, i/charSize)
		}
		i += charSize
	}
	return nil
}

func padded(n int) int {
	return (n + Int32Size - 1) &^ (Int32Size - 1)
}
