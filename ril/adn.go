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

// Dialing control characters as stored on the SIM and as displayed.
const (
	recordWait   = 'e'
	recordPause  = 'T'
	recordWild   = '?'
	displayWait  = ';'
	displayPause = ','
	displayWild  = 'N'
)

var (
	toDisplay = strings.NewReplacer(
		string(recordWait), string(displayWait),
		string(recordPause), string(displayPause),
		string(recordWild), string(displayWild),
	)
	toRecord = strings.NewReplacer(
		string(displayWait), string(recordWait),
		string(displayPause), string(recordPause),
		string(displayWild), string(recordWild),
	)
)

// ToDisplayNumber converts a number from SIM storage form to display form.
func ToDisplayNumber(number string) string {
	return toDisplay.Replace(number)
}

// ToRecordNumber converts a display-form number to SIM storage form.
func ToRecordNumber(number string) string {
	return toRecord.Replace(number)
}

// AdnRecord is one SIM phonebook entry. Numbers are held in display form.
type AdnRecord struct {
	Index     int32    `json:"index"`
	AlphaTag  string   `json:"alpha_tag"`
	Number    string   `json:"number"`
	Emails    []string `json:"emails,omitempty"`
	AdNumbers []string `json:"ad_numbers,omitempty"`
}

func (r AdnRecord) String() string {
	return fmt.Sprintf("{index=%d alpha=%q number=%q emails=%v anrs=%v}",
		r.Index, r.AlphaTag, r.Number, r.Emails, r.AdNumbers)
}

// Validate checks the record can be written to the SIM.
func (r *AdnRecord) Validate() error {
	if r.Index < 0 {
		return fmt.Errorf("%w: record index %d is negative", ErrInvalidArgument, r.Index)
	}
	return nil
}

// Pack writes the record body: index, alpha tag, number, emails, additional
// numbers. Numbers are converted to storage form.
func (r *AdnRecord) Pack(p *Parcel) error {
	p.WriteInt32(r.Index)
	if err := p.WriteStringValue(r.AlphaTag); err != nil {
		return err
	}
	if err := p.WriteStringValue(ToRecordNumber(r.Number)); err != nil {
		return err
	}
	p.WriteInt32(int32(len(r.Emails)))
	for _, email := range r.Emails {
		if err := p.WriteStringValue(email); err != nil {
			return err
		}
	}
	p.WriteInt32(int32(len(r.AdNumbers)))
	for _, number := range r.AdNumbers {
		if err := p.WriteStringValue(ToRecordNumber(number)); err != nil {
			return err
		}
	}
	return nil
}

// Unpack reads a record body written by Pack.
func (r *AdnRecord) Unpack(p *Parcel) error {
	var err error
	if r.Index, err = p.ReadInt32("record index"); err != nil {
		return err
	}
	if r.AlphaTag, err = readOptionalString(p, "alpha tag"); err != nil {
		return err
	}
	var number string
	if number, err = readOptionalString(p, "number"); err != nil {
		return err
	}
	r.Number = ToDisplayNumber(number)

	numEmails, err := p.ReadCount("email count")
	if err != nil {
		return err
	}
	r.Emails = nil
	if numEmails > 0 {
		if numEmails > p.DataAvail()/Int32Size {
			return malformed("emails", fmt.Errorf("count %d exceeds available data", numEmails))
		}
		r.Emails = make([]string, numEmails)
		for i := range r.Emails {
			if r.Emails[i], err = readOptionalString(p, "email"); err != nil {
				return err
			}
		}
	}

	numAdNumbers, err := p.ReadCount("additional number count")
	if err != nil {
		return err
	}
	r.AdNumbers = nil
	if numAdNumbers > 0 {
		if numAdNumbers > p.DataAvail()/Int32Size {
			return malformed("additional numbers", fmt.Errorf("count %d exceeds available data", numAdNumbers))
		}
		r.AdNumbers = make([]string, numAdNumbers)
		for i := range r.AdNumbers {
			var n string
			if n, err = readOptionalString(p, "additional number"); err != nil {
				return err
			}
			r.AdNumbers[i] = ToDisplayNumber(n)
		}
	}
	return nil
}

func readOptionalString(p *Parcel, field string) (string, error) {
	s, err := p.ReadString(field)
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

func packAdnRecords(p *Parcel, records []AdnRecord) error {
	p.WriteInt32(int32(len(records)))
	for i := range records {
		if err := records[i].Pack(p); err != nil {
			return err
		}
	}
	return nil
}

func unpackAdnRecords(p *Parcel) ([]AdnRecord, error) {
	numRecords, err := p.ReadCount("record count")
	if err != nil {
		return nil, err
	}
	if numRecords > p.DataAvail()/Int32Size {
		return nil, malformed("records", fmt.Errorf("count %d exceeds available data", numRecords))
	}
	records := make([]AdnRecord, numRecords)
	for i := range records {
		if err := records[i].Unpack(p); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}
