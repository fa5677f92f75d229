package units

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action identifies the kind of a history entry.
type Action string

const (
	ActionCreated       Action = "created"
	ActionDistributed   Action = "distributed"
	ActionStatusChanged Action = "status_changed"
)

// Details is the action-specific payload of a history entry.
// The concrete type always matches the entry's Action.
type Details interface {
	Action() Action
}

// CreatedDetails is recorded when a unit is materialized.
type CreatedDetails struct {
	Batch       string `json:"batch"`
	Unit        int    `json:"unit"`
	OperationID string `json:"operationId,omitempty"`
}

func (CreatedDetails) Action() Action { return ActionCreated }

// DistributedDetails is recorded for every consumption from a unit.
type DistributedDetails struct {
	DistributedQuantity int    `json:"distributedQuantity"`
	Reason              string `json:"reason"`
	Destination         string `json:"destination,omitempty"`
	FIFOPosition        int    `json:"fifoPosition"`
	OperationID         string `json:"operationId,omitempty"`
}

func (DistributedDetails) Action() Action { return ActionDistributed }

// StatusChangedDetails is recorded on manual status transitions.
type StatusChangedDetails struct {
	From   Status `json:"from"`
	To     Status `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func (StatusChangedDetails) Action() Action { return ActionStatusChanged }

// UnknownDetails quarantines entries written by a newer version with an
// action this build does not know. The raw payload is kept verbatim.
type UnknownDetails struct {
	Kind Action
	Raw  json.RawMessage
}

func (d UnknownDetails) Action() Action { return d.Kind }

// HistoryEntry is one append-only audit record of a unit.
type HistoryEntry struct {
	Action    Action    `json:"action"`
	ActorID   string    `json:"actorId"`
	Timestamp time.Time `json:"timestamp"`
	Details   Details   `json:"details"`
}

// NewHistoryEntry builds an entry whose Action is taken from details.
func NewHistoryEntry(actorID string, at time.Time, details Details) HistoryEntry {
	return HistoryEntry{
		Action:    details.Action(),
		ActorID:   actorID,
		Timestamp: at,
		Details:   details,
	}
}

type historyEntryJSON struct {
	Action    Action          `json:"action"`
	ActorID   string          `json:"actorId"`
	Timestamp time.Time       `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
}

// MarshalJSON encodes the entry with details nested under "details".
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	raw, err := MarshalDetails(e.Details)
	if err != nil {
		return nil, err
	}
	return json.Marshal(historyEntryJSON{
		Action:    e.Action,
		ActorID:   e.ActorID,
		Timestamp: e.Timestamp,
		Details:   raw,
	})
}

// UnmarshalJSON decodes the details into the concrete type for the action.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var aux historyEntryJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	details, err := DecodeDetails(aux.Action, aux.Details)
	if err != nil {
		return err
	}
	e.Action = aux.Action
	e.ActorID = aux.ActorID
	e.Timestamp = aux.Timestamp
	e.Details = details
	return nil
}

// MarshalDetails encodes a details payload for storage.
func MarshalDetails(d Details) (json.RawMessage, error) {
	switch v := d.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case UnknownDetails:
		if len(v.Raw) == 0 {
			return json.RawMessage("null"), nil
		}
		return v.Raw, nil
	default:
		return json.Marshal(v)
	}
}

// DecodeDetails decodes a stored payload for the given action.
// Unknown actions are returned as UnknownDetails rather than an error.
func DecodeDetails(action Action, raw json.RawMessage) (Details, error) {
	switch action {
	case ActionCreated:
		var d CreatedDetails
		err := decodeInto(action, raw, &d)
		return d, err
	case ActionDistributed:
		var d DistributedDetails
		err := decodeInto(action, raw, &d)
		return d, err
	case ActionStatusChanged:
		var d StatusChangedDetails
		err := decodeInto(action, raw, &d)
		return d, err
	default:
		return UnknownDetails{Kind: action, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeInto(action Action, raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s details: %w", action, err)
	}
	return nil
}
