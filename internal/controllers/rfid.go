package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RFIDUID is a card UID as sent by kiosk readers. Some readers post the
// decimal card number as a JSON number, others a string with the hex bytes
// separated by spaces ("04 A1 B2 C3"). Both normalise to a single token.
type RFIDUID string

func (r *RFIDUID) UnmarshalJSON(data []byte) error {
	if r == nil {
		return fmt.Errorf("RFIDUID: nil receiver")
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*r = RFIDUID(strings.Join(strings.Fields(s), ""))
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err == nil {
		if strings.ContainsAny(num.String(), ".eE-+") {
			return fmt.Errorf("RFIDUID: card number must be a non-negative integer, got %s", num)
		}
		*r = RFIDUID(num.String())
		return nil
	}

	return fmt.Errorf("RFIDUID: expected string or number, got %s", string(data))
}

func (r RFIDUID) String() string {
	return string(r)
}
