package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// wrapperKeys are the nested-object keys a numeric value may hide under,
// tried in priority order.
var wrapperKeys = []string{"hex", "value", "result"}

// CoerceBigInt converts a value of any upstream shape into an exact integer.
// Shapes are tried in a fixed order: native integer kinds, *big.Int,
// json.Number, decimal string, 0x-prefixed hex string, then a wrapper object
// carrying one of the known keys. Anything else is an error naming the shape.
func CoerceBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("nil value")
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil *big.Int")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case float64:
		f := big.NewFloat(v)
		n, accuracy := f.Int(nil)
		if accuracy != big.Exact {
			return nil, fmt.Errorf("number %v is not an exact integer", v)
		}
		return n, nil
	case json.Number:
		return coerceNumericString(string(v))
	case string:
		return coerceNumericString(v)
	case map[string]interface{}:
		for _, key := range wrapperKeys {
			if inner, ok := v[key]; ok {
				n, err := CoerceBigInt(inner)
				if err != nil {
					return nil, fmt.Errorf("wrapper key %q: %w", key, err)
				}
				return n, nil
			}
		}
		return nil, fmt.Errorf("wrapper object has none of %v", wrapperKeys)
	default:
		return nil, fmt.Errorf("unsupported integer shape %T", value)
	}
}

func coerceNumericString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty numeric string")
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		hexDigits := s[2:]
		if hexDigits == "" {
			return nil, fmt.Errorf("bare 0x prefix")
		}
		n, ok := new(big.Int).SetString(hexDigits, 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex string %q", s)
		}
		return n, nil
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal string %q", s)
	}
	return n, nil
}

// CoerceUint64 narrows a coerced integer into a uint64, rejecting negatives
// and overflow.
func CoerceUint64(value interface{}) (uint64, error) {
	n, err := CoerceBigInt(value)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 {
		return 0, fmt.Errorf("negative value %s", n.String())
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("value %s overflows uint64", n.String())
	}
	return n.Uint64(), nil
}

// CoerceAddress normalizes a value into a lower-case 0x-prefixed address,
// reporting false for anything that is not a well-formed address.
func CoerceAddress(value interface{}) (string, bool) {
	switch v := value.(type) {
	case common.Address:
		return strings.ToLower(v.Hex()), true
	case *common.Address:
		if v == nil {
			return "", false
		}
		return strings.ToLower(v.Hex()), true
	case string:
		s := strings.TrimSpace(v)
		if !common.IsHexAddress(s) {
			return "", false
		}
		return strings.ToLower(common.HexToAddress(s).Hex()), true
	default:
		return "", false
	}
}

// FieldError marks a fatal field conversion failure during event decoding.
// Unlike routine decode skips, it indicates an ABI mismatch that should
// surface to the caller with the event and field named.
type FieldError struct {
	Event string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("event %s field %s: %v", e.Event, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
