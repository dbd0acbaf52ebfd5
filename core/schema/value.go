package schema

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalidValue is returned when a value cannot be coerced to a field's type.
var ErrInvalidValue = errors.New("invalid value")

// Coerce converts v into the canonical Go representation for the field:
// string for string-like fields, int for int, bool for bool. IP and MAC
// values are returned in their canonical text form.
func Coerce(f Field, v any) (any, error) {
	if v == nil {
		return zero(f.Type), nil
	}
	switch f.Type {
	case FieldTypeString, FieldTypeText, FieldTypeSecret, FieldTypeChoice:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(f, v, "expected string")
		}
		return s, nil
	case FieldTypeInt:
		return coerceInt(f, v)
	case FieldTypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, invalid(f, v, "expected boolean")
			}
			return parsed, nil
		}
		return nil, invalid(f, v, "expected boolean")
	case FieldTypeIP:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(f, v, "expected address string")
		}
		return coerceIP(f, s)
	case FieldTypeMAC:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(f, v, "expected hardware address string")
		}
		if s == "" {
			return "", nil
		}
		hw, err := net.ParseMAC(s)
		if err != nil {
			return nil, invalid(f, v, err.Error())
		}
		return strings.ToLower(hw.String()), nil
	case FieldTypeRef:
		return nil, invalid(f, v, "references are not plain values")
	}
	return nil, invalid(f, v, "unknown field type")
}

// IsZero reports whether a coerced value is the zero value of its field type.
func IsZero(f Field, v any) bool {
	return v == nil || v == zero(f.Type)
}

func zero(t FieldType) any {
	switch t {
	case FieldTypeInt:
		return 0
	case FieldTypeBool:
		return false
	case FieldTypeRef:
		return nil
	}
	return ""
}

func coerceInt(f Field, v any) (any, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, invalid(f, v, "integer out of range")
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, invalid(f, v, "expected integer")
		}
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return nil, invalid(f, v, "expected integer")
		}
		return parsed, nil
	}
	return nil, invalid(f, v, "expected integer")
}

func coerceIP(f Field, s string) (any, error) {
	if s == "" {
		return "", nil
	}
	if strings.Contains(s, "/") {
		if f.Format == FormatHost {
			return nil, invalid(f, s, "host address must not carry a prefix length")
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, invalid(f, s, err.Error())
		}
		return p.String(), nil
	}
	if f.Format == FormatSubnet {
		return nil, invalid(f, s, "subnet address requires a prefix length")
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return nil, invalid(f, s, err.Error())
	}
	return a.String(), nil
}

func invalid(f Field, v any, msg string) error {
	return fmt.Errorf("%w: %s = %v: %s", ErrInvalidValue, f.Name, v, msg)
}
