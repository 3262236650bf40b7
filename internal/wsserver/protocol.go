// Package wsserver streams layout, input updates, display state and forwarded
// logs to the overlay over a local WebSocket.
//
// # Message protocol
//
// Every frame is a JSON text message with a "type" and a "seq". seq comes from
// one counter per hub and increases in write order, so a client can drop
// anything older than what it already applied.
//
//	{"type":"layout","seq":1,"layout":{...}}
//	{"type":"update","seq":2,"updates":[{"kind":"switch_pressed","id":"a","slot":"tap"}]}
//	{"type":"state","seq":3,"state":{"layers":["base"],"switches":[]}}
//	{"type":"log","seq":4,"log":{"level":"WARN","message":"..."}}
//	{"type":"status","seq":5,"status":{...}}
//	{"type":"error","seq":6,"error":"..."}
//
// The client sends {"action":"ready"} to get the bootstrap messages again and
// {"action":"status"} for an engine snapshot.
package wsserver

import (
	"encoding/json"
	"fmt"

	"layerlens/internal/display"
	"layerlens/internal/engine"
	"layerlens/internal/layout"
	"layerlens/internal/logforward"
)

type MessageType string

const (
	TypeLayout MessageType = "layout"
	TypeUpdate MessageType = "update"
	TypeState  MessageType = "state"
	TypeLog    MessageType = "log"
	TypeStatus MessageType = "status"
	TypeError  MessageType = "error"
)

// Message is one outbound frame. Only the field matching Type is set.
type Message struct {
	Type    MessageType       `json:"type"`
	Seq     uint64            `json:"seq"`
	Layout  *layout.Layout    `json:"layout,omitempty"`
	Updates []UpdatePayload   `json:"updates,omitempty"`
	State   *display.State    `json:"state,omitempty"`
	Log     *logforward.Entry `json:"log,omitempty"`
	Status  json.RawMessage   `json:"status,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Update kinds on the wire.
const (
	KindLayerActivate   = "layer_activate"
	KindLayerDeactivate = "layer_deactivate"
	KindSwitchPressed   = "switch_pressed"
	KindSwitchReleased  = "switch_released"
)

// UpdatePayload is the wire form of an engine.Update.
type UpdatePayload struct {
	Kind  string `json:"kind"`
	Layer string `json:"layer,omitempty"`
	ID    string `json:"id,omitempty"`
	Slot  string `json:"slot,omitempty"`
}

// EncodeUpdate converts u to its wire form.
func EncodeUpdate(u engine.Update) (UpdatePayload, error) {
	switch u := u.(type) {
	case engine.LayerActivate:
		return UpdatePayload{Kind: KindLayerActivate, Layer: u.Layer}, nil
	case engine.LayerDeactivate:
		return UpdatePayload{Kind: KindLayerDeactivate, Layer: u.Layer}, nil
	case engine.SwitchPressed:
		return UpdatePayload{Kind: KindSwitchPressed, ID: u.ID, Slot: u.Slot.String()}, nil
	case engine.SwitchReleased:
		return UpdatePayload{Kind: KindSwitchReleased, ID: u.ID}, nil
	default:
		return UpdatePayload{}, fmt.Errorf("wsserver: encode update: unknown type %T", u)
	}
}

// DecodeUpdate converts a wire payload back to an engine.Update.
func DecodeUpdate(p UpdatePayload) (engine.Update, error) {
	switch p.Kind {
	case KindLayerActivate:
		return engine.LayerActivate{Layer: p.Layer}, nil
	case KindLayerDeactivate:
		return engine.LayerDeactivate{Layer: p.Layer}, nil
	case KindSwitchPressed:
		slot, err := layout.ParseSlot(p.Slot)
		if err != nil {
			return nil, fmt.Errorf("wsserver: decode update: %w", err)
		}
		return engine.SwitchPressed{ID: p.ID, Slot: slot}, nil
	case KindSwitchReleased:
		return engine.SwitchReleased{ID: p.ID}, nil
	default:
		return nil, fmt.Errorf("wsserver: decode update: unknown kind %q", p.Kind)
	}
}

// UpdatesMessage encodes a batch. Unknown update types are skipped.
func UpdatesMessage(updates []engine.Update) Message {
	msg := Message{Type: TypeUpdate, Updates: make([]UpdatePayload, 0, len(updates))}
	for _, u := range updates {
		p, err := EncodeUpdate(u)
		if err != nil {
			continue
		}
		msg.Updates = append(msg.Updates, p)
	}
	return msg
}

func LayoutMessage(l *layout.Layout) Message { return Message{Type: TypeLayout, Layout: l} }

func StateMessage(s display.State) Message { return Message{Type: TypeState, State: &s} }

func LogMessage(e logforward.Entry) Message { return Message{Type: TypeLog, Log: &e} }

// Client actions.
const (
	actionReady  = "ready"
	actionStatus = "status"
)

type clientMsg struct {
	Action string `json:"action"`
}
