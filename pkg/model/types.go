package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// AttributeType is the declared value type of an attribute.
type AttributeType string

const (
	TypeString AttributeType = "string"
	TypeInt    AttributeType = "int"
	TypeFloat  AttributeType = "float"
	TypeBool   AttributeType = "bool"
	TypeTime   AttributeType = "time"
	TypeBytes  AttributeType = "bytes"
)

// Valid reports whether t is a known attribute type.
func (t AttributeType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeTime, TypeBytes:
		return true
	}
	return false
}

// Coerce converts v into the canonical Go type for t: string, int64,
// float64, bool, time.Time or []byte. It also accepts the shapes JSON
// decoding produces (float64 numbers, json.Number, RFC 3339 strings, base64
// strings) so values read back from a store land on the same types.
// A nil value is returned unchanged.
func (t AttributeType) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}

	case TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case uint:
			if uint64(n) <= math.MaxInt64 {
				return int64(n), nil
			}
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), nil
			}
		case float64:
			if n == math.Trunc(n) && n >= math.MinInt64 && n <= math.MaxInt64 {
				return int64(n), nil
			}
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		}

	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, nil
			}
		}

	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}

	case TypeTime:
		switch tv := v.(type) {
		case time.Time:
			return tv.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, tv)
			if err == nil {
				return parsed.UTC(), nil
			}
		}

	case TypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			decoded, err := base64.StdEncoding.DecodeString(b)
			if err == nil {
				return decoded, nil
			}
		}
	}

	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

// DeleteRule decides what happens to related objects when an object is
// deleted.
type DeleteRule string

const (
	// DeleteNullify removes the deleted object from the inverse relationship.
	DeleteNullify DeleteRule = "nullify"

	// DeleteCascade deletes the related objects as well.
	DeleteCascade DeleteRule = "cascade"

	// DeleteDeny refuses the delete while the relationship has targets.
	DeleteDeny DeleteRule = "deny"
)

// Valid reports whether r is a known delete rule.
func (r DeleteRule) Valid() bool {
	switch r {
	case DeleteNullify, DeleteCascade, DeleteDeny:
		return true
	}
	return false
}

// Holds reports whether v already has the canonical Go type for t.
func (t AttributeType) Holds(v any) bool {
	switch v.(type) {
	case string:
		return t == TypeString
	case int64:
		return t == TypeInt
	case float64:
		return t == TypeFloat
	case bool:
		return t == TypeBool
	case time.Time:
		return t == TypeTime
	case []byte:
		return t == TypeBytes
	}
	return false
}
