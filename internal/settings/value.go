// Package settings stores runtime-tunable values as a typed variant.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindJSON    Kind = "json"
)

var (
	ErrInvalidKind  = errors.New("invalid_setting_type")
	ErrInvalidValue = errors.New("invalid_setting_value")
	ErrKindMismatch = errors.New("setting_type_mismatch")
	ErrInvalidKey   = errors.New("invalid_setting_key")
	ErrNotFound     = errors.New("setting_not_found")
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindString, KindNumber, KindBoolean, KindJSON:
		return k, nil
	default:
		return "", ErrInvalidKind
	}
}

// Value holds exactly one of its payloads, selected by kind.
type Value struct {
	kind Kind
	str  string
	num  decimal.Decimal
	b    bool
	doc  datatypes.JSON
}

func String(v string) Value { return Value{kind: KindString, str: v} }

func Number(v decimal.Decimal) Value { return Value{kind: KindNumber, num: v} }

func Int(v int64) Value { return Number(decimal.NewFromInt(v)) }

func Bool(v bool) Value { return Value{kind: KindBoolean, b: v} }

func JSON(raw []byte) (Value, error) {
	if !json.Valid(raw) {
		return Value{}, ErrInvalidValue
	}
	return Value{kind: KindJSON, doc: datatypes.JSON(bytes.Clone(raw))}, nil
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", ErrKindMismatch
	}
	return v.str, nil
}

func (v Value) AsNumber() (decimal.Decimal, error) {
	if v.kind != KindNumber {
		return decimal.Zero, ErrKindMismatch
	}
	return v.num, nil
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBoolean {
		return false, ErrKindMismatch
	}
	return v.b, nil
}

func (v Value) AsJSON() (datatypes.JSON, error) {
	if v.kind != KindJSON {
		return nil, ErrKindMismatch
	}
	return v.doc, nil
}

// Encode renders the payload for the value column.
func (v Value) Encode() string {
	switch v.kind {
	case KindNumber:
		return v.num.String()
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindJSON:
		return string(v.doc)
	default:
		return v.str
	}
}

// Parse decodes a stored value column according to its declared kind.
func Parse(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindString:
		return String(raw), nil
	case KindNumber:
		n, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, ErrInvalidValue
		}
		return Number(n), nil
	case KindBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, ErrInvalidValue
		}
		return Bool(b), nil
	case KindJSON:
		return JSON([]byte(raw))
	default:
		return Value{}, ErrInvalidKind
	}
}

// FromJSON builds a value from an API payload, where the JSON type must
// agree with kind.
func FromJSON(kind Kind, raw json.RawMessage) (Value, error) {
	switch kind {
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, ErrInvalidValue
		}
		return String(s), nil
	case KindNumber:
		var n decimal.Decimal
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, ErrInvalidValue
		}
		return Number(n), nil
	case KindBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, ErrInvalidValue
		}
		return Bool(b), nil
	case KindJSON:
		return JSON(raw)
	default:
		return Value{}, ErrInvalidKind
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindNumber:
		payload = v.num
	case KindBoolean:
		payload = v.b
	case KindJSON:
		payload = json.RawMessage(v.doc)
	default:
		payload = v.str
	}
	return json.Marshal(struct {
		Type  Kind `json:"type"`
		Value any  `json:"value"`
	}{Type: v.kind, Value: payload})
}
