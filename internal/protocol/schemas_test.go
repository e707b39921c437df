package protocol_test

import (
	"testing"

	"ctfbuddy.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	valid := map[string]string{
		protocol.TypeHello:    `{"type":"HELLO","protocol_version":"1.0","player_name":"alex"}`,
		protocol.TypeCommand:  `{"type":"COMMAND","protocol_version":"1.0","id":"c1","line":"makeflag item"}`,
		protocol.TypeComplete: `{"type":"COMPLETE","protocol_version":"1.0","id":"c2","line":"makeflag "}`,
		protocol.TypeAct:      `{"type":"ACT","protocol_version":"1.0","id":"a1","kind":"MOVE","pos":[1,64,-3]}`,
	}
	for typ, raw := range valid {
		if err := protocol.ValidateClient(typ, []byte(raw)); err != nil {
			t.Fatalf("%s: expected valid, got %v", typ, err)
		}
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	cases := []struct {
		typ string
		raw string
	}{
		{protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0"}`},
		{protocol.TypeCommand, `{"type":"COMMAND","protocol_version":"1.0","id":"c1","line":""}`},
		{protocol.TypeAct, `{"type":"ACT","protocol_version":"1.0","id":"a1","kind":"MOVE"}`},
		{protocol.TypeAct, `{"type":"ACT","protocol_version":"1.0","id":"a1","kind":"PORTAL"}`},
		{protocol.TypeAct, `{"type":"ACT","protocol_version":"1.0","id":"a1","kind":"FLY"}`},
		{protocol.TypeAct, `{"type":"ACT","protocol_version":"1.0","id":"a1","kind":"MOVE","pos":[1,2]}`},
		{protocol.TypeWelcome, `{"type":"WELCOME"}`},
		{protocol.TypeCommand, `not json`},
	}
	for _, c := range cases {
		if err := protocol.ValidateClient(c.typ, []byte(c.raw)); err == nil {
			t.Fatalf("%s %s: expected rejection", c.typ, c.raw)
		}
	}
}
