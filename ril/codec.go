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
	"fmt"
	"strings"
)

// ResultKind selects how a reply or event payload is decoded.
type ResultKind int

const (
	VoidResult ResultKind = iota
	TextResult
	IntsResult
	RecordsResult
	RawResult
)

func (k ResultKind) String() string {
	switch k {
	case VoidResult:
		return "void"
	case TextResult:
		return "text"
	case IntsResult:
		return "ints"
	case RecordsResult:
		return "records"
	case RawResult:
		return "raw"
	}
	return fmt.Sprintf("<kind %d>", int(k))
}

func (k ResultKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is a decoded payload. Only the field matching Kind is set.
type Result struct {
	Kind    ResultKind  `json:"kind"`
	Text    *string     `json:"text,omitempty"`
	Ints    []int32     `json:"ints,omitempty"`
	Records []AdnRecord `json:"records,omitempty"`
	Raw     []byte      `json:"raw,omitempty"`
}

func (r *Result) String() string {
	if r == nil {
		return "<nil>"
	}
	switch r.Kind {
	case VoidResult:
		return "{}"
	case TextResult:
		if r.Text == nil {
			return "{text=<absent>}"
		}
		return fmt.Sprintf("{text=%q}", *r.Text)
	case IntsResult:
		return fmt.Sprintf("{ints=%v}", r.Ints)
	case RecordsResult:
		parts := make([]string, len(r.Records))
		for i, rec := range r.Records {
			parts[i] = rec.String()
		}
		return fmt.Sprintf("{records=[%s]}", strings.Join(parts, " "))
	}
	return fmt.Sprintf("{raw=%x}", r.Raw)
}

// ResponseKind is the payload shape of a solicited reply, keyed by
// canonical request code.
func ResponseKind(code RequestCode) (ResultKind, bool) {
	switch code {
	case SimGetAtrRequest:
		return TextResult, true
	case SimOpenChannelWithP2Request, GetAdnRecordRequest, UpdateAdnRecordRequest:
		return IntsResult, true
	}
	return 0, false
}

// EventKind is the payload shape of an unsolicited event, keyed by
// canonical event code.
func EventKind(code EventCode) (ResultKind, bool) {
	switch code {
	case AdnInitDoneEvent:
		return VoidResult, true
	case AdnRecordsEvent:
		return RecordsResult, true
	}
	return 0, false
}

// Pack writes the payload in wire order.
func (r *Result) Pack(p *Parcel) error {
	switch r.Kind {
	case VoidResult:
		return nil
	case TextResult:
		return p.WriteString(r.Text)
	case IntsResult:
		p.WriteInt32(int32(len(r.Ints)))
		for _, v := range r.Ints {
			p.WriteInt32(v)
		}
		return nil
	case RecordsResult:
		return packAdnRecords(p, r.Records)
	case RawResult:
		p.WriteRaw(r.Raw)
		return nil
	}
	return fmt.Errorf("cannot pack result kind %s", r.Kind)
}

// UnpackResult decodes a payload of the given kind from the cursor. An
// empty payload yields an absent Text or an empty Ints rather than an
// error; running out part way through is ErrMalformedResponse.
func UnpackResult(kind ResultKind, p *Parcel) (*Result, error) {
	result := &Result{Kind: kind}
	switch kind {
	case VoidResult:
		return result, nil
	case TextResult:
		if p.DataAvail() == 0 {
			return result, nil
		}
		text, err := p.ReadString("text")
		if err != nil {
			return nil, err
		}
		result.Text = text
	case IntsResult:
		if p.DataAvail() == 0 {
			return result, nil
		}
		n, err := p.ReadCount("int count")
		if err != nil {
			return nil, err
		}
		if n > p.DataAvail()/Int32Size {
			return nil, malformed("ints", fmt.Errorf("count %d exceeds %d available bytes", n, p.DataAvail()))
		}
		result.Ints = make([]int32, n)
		for i := range result.Ints {
			if result.Ints[i], err = p.ReadInt32("int"); err != nil {
				return nil, err
			}
		}
	case RecordsResult:
		records, err := unpackAdnRecords(p)
		if err != nil {
			return nil, err
		}
		result.Records = records
	case RawResult:
		result.Raw = p.Remaining()
	default:
		return nil, fmt.Errorf("cannot unpack result kind %s", kind)
	}
	return result, nil
}
