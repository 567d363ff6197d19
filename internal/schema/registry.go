// Package schema holds the static registry of event keys and the payload rules each key
// enforces.
package schema

import (
	"strings"

	"github.com/jnst/trading-event-queue/internal/model"
)

// FieldType is the JSON type a payload field must carry.
type FieldType string

const (
	// TypeString accepts JSON strings.
	TypeString FieldType = "string"
	// TypeInteger accepts integral JSON numbers.
	TypeInteger FieldType = "integer"
	// TypeFloat accepts any JSON number.
	TypeFloat FieldType = "float"
)

// Field describes one payload field.
type Field struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	MinValue  *float64  `json:"min_value,omitempty"`
	MaxValue  *float64  `json:"max_value,omitempty"`
	MaxLength int       `json:"max_length,omitempty"`
	Choices   []string  `json:"choices,omitempty"`
}

// Entry is a registered key with its ordered field list.
type Entry struct {
	Key    model.EventKey `json:"key"`
	Name   string         `json:"name"`
	Schema []Field        `json:"schema"`
}

// Registered event keys.
const (
	KeyPostOrder           model.EventKey = "post.order"
	KeyGetOrder            model.EventKey = "get.order"
	KeyPutOrder            model.EventKey = "put.order"
	KeyDeleteOrder         model.EventKey = "delete.order"
	KeyGetAccountInfo      model.EventKey = "get.account.info"
	KeyGetKlines           model.EventKey = "get.klines"
	KeyGetTicker           model.EventKey = "get.ticker"
	KeyPatchAccountDisable model.EventKey = "patch.account.disable"
	KeyPatchAccountEnable  model.EventKey = "patch.account.enable"
)

func minValue(v float64) *float64 { return &v }

var registry = []Entry{
	{Key: KeyPostOrder, Schema: []Field{
		{Name: "symbol", Type: TypeString, Required: true},
		{Name: "strategy", Type: TypeInteger, Required: true},
		{Name: "type", Type: TypeString, Required: true, Choices: []string{"buy", "sell"}},
		{Name: "volume", Type: TypeFloat, Required: true, MinValue: minValue(0.01)},
		{Name: "price", Type: TypeFloat},
		{Name: "stop_loss", Type: TypeFloat},
		{Name: "take_profit", Type: TypeFloat},
		{Name: "comment", Type: TypeString, MaxLength: 255},
	}},
	{Key: KeyGetOrder, Schema: []Field{
		{Name: "id", Type: TypeInteger, Required: true},
	}},
	{Key: KeyPutOrder, Schema: []Field{
		{Name: "id", Type: TypeInteger, Required: true},
		{Name: "stop_loss", Type: TypeFloat},
		{Name: "take_profit", Type: TypeFloat},
	}},
	{Key: KeyDeleteOrder, Schema: []Field{
		{Name: "id", Type: TypeInteger, Required: true},
	}},
	{Key: KeyGetAccountInfo, Schema: []Field{}},
	{Key: KeyGetKlines, Schema: []Field{}},
	{Key: KeyGetTicker, Schema: []Field{}},
	{Key: KeyPatchAccountDisable, Schema: []Field{}},
	{Key: KeyPatchAccountEnable, Schema: []Field{}},
}

var byKey = func() map[model.EventKey]Entry {
	m := make(map[model.EventKey]Entry, len(registry))
	for i := range registry {
		registry[i].Name = strings.ToUpper(strings.ReplaceAll(string(registry[i].Key), ".", "_"))
		m[registry[i].Key] = registry[i]
	}
	return m
}()

// Entries returns every registered key in declaration order.
func Entries() []Entry {
	out := make([]Entry, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the entry for key.
func Lookup(key model.EventKey) (Entry, bool) {
	entry, ok := byKey[key]
	return entry, ok
}

// Registered reports whether key is in the registry.
func Registered(key model.EventKey) bool {
	_, ok := byKey[key]
	return ok
}
