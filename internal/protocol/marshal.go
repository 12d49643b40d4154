package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// envelope is the wire structure shared by every message in both directions
type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

type decoder func(t Type, data []byte) (Event, error)

var decoders = map[Type]decoder{
	TypeCreateGame: decodeCreate,
	TypeCreate:     decodeCreate,
	TypeJoinGame:   decodeJoin,
	TypeJoin:       decodeJoin,
	TypeMessage: func(t Type, data []byte) (Event, error) {
		// An empty message is still echoed, only an absent key is rejected
		var raw struct {
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &ValidationError{Type: t, Field: fieldOf(err)}
		}
		if raw.Message == nil {
			return nil, &ValidationError{Type: t, Field: "message"}
		}
		return &Message{Message: *raw.Message}, nil
	},
	TypeGameCreated: func(t Type, data []byte) (Event, error) {
		var e GameCreated
		return decodeInto(t, data, &e, required{"code", &e.Code})
	},
	TypeGameJoined: func(t Type, data []byte) (Event, error) {
		var e GameJoined
		ev, err := decodeInto(t, data, &e, required{"your_id", &e.YourID}, required{"code", &e.Code})
		if err == nil && e.Players == nil {
			e.Players = []PlayerInfo{}
		}
		return ev, err
	},
	TypePlayerJoined: func(t Type, data []byte) (Event, error) {
		var e PlayerJoined
		return decodeInto(t, data, &e, required{"id", &e.ID})
	},
	TypePlayerLeft: func(t Type, data []byte) (Event, error) {
		var e PlayerLeft
		return decodeInto(t, data, &e, required{"player_id", &e.PlayerID})
	},
	TypeHostChanged: func(t Type, data []byte) (Event, error) {
		var e HostChanged
		return decodeInto(t, data, &e, required{"id", &e.ID})
	},
	TypeError: func(t Type, data []byte) (Event, error) {
		var e Error
		return decodeInto(t, data, &e, required{"message", &e.Message})
	},
}

func decodeCreate(t Type, data []byte) (Event, error) {
	e := CreateGame{Alias: t == TypeCreate}
	return decodeInto(t, data, &e, required{"name", &e.Name})
}

func decodeJoin(t Type, data []byte) (Event, error) {
	e := JoinGame{Alias: t == TypeJoin}
	return decodeInto(t, data, &e, required{"code", &e.Code}, required{"name", &e.Name})
}

// required names a string field that must be present and non-blank
type required struct {
	name  string
	value *string
}

func decodeInto(t Type, data []byte, e Event, fields ...required) (Event, error) {
	if err := json.Unmarshal(data, e); err != nil {
		// A field with the wrong JSON type is a shape problem, not a framing one
		return nil, &ValidationError{Type: t, Field: fieldOf(err)}
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			return nil, &ValidationError{Type: t, Field: f.name}
		}
	}
	return e, nil
}

func fieldOf(err error) string {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) && ute.Field != "" {
		return ute.Field
	}
	return "data"
}

// Decode parses one text frame into a typed Event
func Decode(raw []byte) (Event, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, &DecodeError{Reason: "payload is not a JSON object"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Err: err}
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, &DecodeError{Reason: "missing type"}
	}
	var t Type
	if err := json.Unmarshal(rawType, &t); err != nil {
		return nil, &DecodeError{Reason: "type is not a string"}
	}
	if t == "" {
		return nil, &DecodeError{Reason: "empty type"}
	}

	data := bytes.TrimSpace(fields["data"])
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if data[0] != '{' {
		return nil, &DecodeError{Reason: "data is not an object"}
	}

	dec, ok := decoders[t]
	if !ok {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &DecodeError{Reason: "invalid data", Err: err}
		}
		return &Unrecognized{Type: t, Data: m}, nil
	}
	return dec(t, data)
}

// Encode serializes an Event into an envelope
func Encode(e Event) ([]byte, error) {
	if e == nil {
		return nil, ErrUnknownEventType
	}

	var data any = e
	switch ev := e.(type) {
	case *Unrecognized:
		if ev.Type == "" {
			return nil, ErrUnknownEventType
		}
		if ev.Data == nil {
			data = map[string]any{}
		} else {
			data = ev.Data
		}
	case *GameJoined:
		if ev.Players == nil {
			cp := *ev
			cp.Players = []PlayerInfo{}
			data = &cp
		}
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return json.Marshal(envelope{Type: e.EventType(), Data: body})
}

// MustEncode is Encode for events built from known-good values
func MustEncode(e Event) []byte {
	b, err := Encode(e)
	if err != nil {
		panic(err)
	}
	return b
}

// EncodeEcho serializes the legacy echo reply for msg
func EncodeEcho(msg string) ([]byte, error) {
	return json.Marshal(EchoReply{Response: "Echo: " + msg})
}
