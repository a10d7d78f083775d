// Package stream defines the outbound chat events and their wire encoding.
//
// Every event is framed as a JSON envelope {"type": T, "data": D}. Over
// Server-Sent Events each envelope becomes one "data: <json>\n\n" frame;
// over WebSocket each envelope is one text message.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
)

// Kind is the envelope type tag.
type Kind string

const (
	KindStatus     Kind = "status"
	KindContent    Kind = "content"
	KindReferences Kind = "references"
	KindError      Kind = "error"
	KindDone       Kind = "done"
)

// Event is one outbound protocol unit. The set of variants is closed: only
// the types in this package implement it.
type Event interface {
	Kind() Kind
	isEvent()
}

// Status reports pipeline progress with a human-readable label.
type Status struct {
	Message string
}

// Content carries one incremental fragment of the answer.
type Content struct {
	Delta string
}

// References carries the documents the answer's citations refer to, in
// citation order.
type References struct {
	Items []retrieval.Reference
}

// Error reports a failure after the stream opened. It is always the last
// event of a stream.
type Error struct {
	Message string
}

// Done terminates a successful stream.
type Done struct {
	Success bool
}

func (Status) Kind() Kind     { return KindStatus }
func (Content) Kind() Kind    { return KindContent }
func (References) Kind() Kind { return KindReferences }
func (Error) Kind() Kind      { return KindError }
func (Done) Kind() Kind       { return KindDone }

func (Status) isEvent()     {}
func (Content) isEvent()    {}
func (References) isEvent() {}
func (Error) isEvent()      {}
func (Done) isEvent()       {}

// Terminal reports whether no event may follow e.
func Terminal(e Event) bool {
	switch e.(type) {
	case Error, Done:
		return true
	}
	return false
}

type envelope struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

type statusData struct {
	Message string `json:"message"`
}

type contentData struct {
	Data string `json:"data"`
}

type referencesData struct {
	References []retrieval.Reference `json:"references"`
}

type errorData struct {
	Message string `json:"message"`
}

type doneData struct {
	Success bool `json:"success"`
}

// Encode serializes e into its JSON envelope.
func Encode(e Event) ([]byte, error) {
	var data any
	switch ev := e.(type) {
	case Status:
		data = statusData{Message: ev.Message}
	case Content:
		data = contentData{Data: ev.Delta}
	case References:
		items := ev.Items
		if items == nil {
			items = []retrieval.Reference{}
		}
		data = referencesData{References: items}
	case Error:
		data = errorData{Message: ev.Message}
	case Done:
		data = doneData{Success: ev.Success}
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}

	b, err := json.Marshal(envelope{Type: e.Kind(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Kind(), err)
	}
	return b, nil
}

// Frame encodes e as a single Server-Sent Events frame. JSON output never
// contains a raw newline, so the frame is one data line.
func Frame(e Event) ([]byte, error) {
	b, err := Encode(e)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(b)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, b...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// Decode parses one JSON envelope back into an Event.
func Decode(b []byte) (Event, error) {
	var raw struct {
		Type Kind            `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch raw.Type {
	case KindStatus:
		var d statusData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal status: %w", err)
		}
		return Status{Message: d.Message}, nil
	case KindContent:
		var d contentData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal content: %w", err)
		}
		return Content{Delta: d.Data}, nil
	case KindReferences:
		var d referencesData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal references: %w", err)
		}
		return References{Items: d.References}, nil
	case KindError:
		var d errorData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
		return Error{Message: d.Message}, nil
	case KindDone:
		var d doneData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal done: %w", err)
		}
		return Done{Success: d.Success}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", raw.Type)
	}
}
