package controllers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRFIDUIDUnmarshal(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"rfid_uid":"RF-1"}`, "RF-1"},
		{"padded", `{"rfid_uid":"  04A1B2C3 \n"}`, "04A1B2C3"},
		{"spaced hex bytes", `{"rfid_uid":"04 A1 B2 C3"}`, "04A1B2C3"},
		{"decimal card number", `{"rfid_uid":3735928559}`, "3735928559"},
		{"null", `{"rfid_uid":null}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req rfidRequest
			require.NoError(t, json.Unmarshal([]byte(tc.body), &req))
			assert.Equal(t, tc.want, req.RFIDUID.String())
		})
	}
}

func TestRFIDUIDRejectsNonIntegers(t *testing.T) {
	for _, body := range []string{`{"rfid_uid":1.5}`, `{"rfid_uid":-42}`, `{"rfid_uid":1e6}`, `{"rfid_uid":true}`} {
		var req rfidRequest
		assert.Error(t, json.Unmarshal([]byte(body), &req), body)
	}
}
