package persistence

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/smilemakc/mbflow/internal/domain"
)

// Codec serializes and deserializes a CheckpointState artifact.
type Codec interface {
	Encode(state domain.CheckpointState) ([]byte, error)
	Decode(data []byte) (domain.CheckpointState, error)
	Ext() string
}

// JSONCodec is the default checkpoint encoding.
type JSONCodec struct{}

// Encode implements Codec.
func (JSONCodec) Encode(state domain.CheckpointState) ([]byte, error) {
	return json.MarshalIndent(state, "", "  ")
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte) (domain.CheckpointState, error) {
	var state domain.CheckpointState
	err := json.Unmarshal(data, &state)
	return state, err
}

// Ext implements Codec.
func (JSONCodec) Ext() string { return "json" }

// MsgpackCodec is an opt-in, more compact binary encoding for large
// checkpoint artifacts (wide variable maps, many node instances).
type MsgpackCodec struct{}

// Encode implements Codec.
func (MsgpackCodec) Encode(state domain.CheckpointState) ([]byte, error) {
	return msgpack.Marshal(state)
}

// Decode implements Codec.
func (MsgpackCodec) Decode(data []byte) (domain.CheckpointState, error) {
	var state domain.CheckpointState
	err := msgpack.Unmarshal(data, &state)
	return state, err
}

// Ext implements Codec.
func (MsgpackCodec) Ext() string { return "msgpack" }
