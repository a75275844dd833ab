package backplane

import (
	"fmt"
	"time"
)

// Quality mirrors OPC-style tag quality flags carried alongside a value.
type Quality int

const (
	QualityGood Quality = iota
	QualityUncertain
	QualityBad
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "Good"
	case QualityUncertain:
		return "Uncertain"
	case QualityBad:
		return "Bad"
	default:
		return "Unknown"
	}
}

// TagValue is one timestamped value published to a handle. Exactly one of
// the typed fields is meaningful, selected by Kind; this mirrors the wire
// protocol's oneof without needing protobuf oneof support.
type TagValue struct {
	Handle    uint32
	Timestamp time.Time
	Quality   Quality
	Owner     string // source_plugin_instance_id
	Kind      ValueKind

	Bool   bool
	Int64  int64
	Double float64
	String string
	Bytes  []byte
}

// ValueKind selects which typed field of a TagValue is populated.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt64
	KindDouble
	KindString
	KindBytes
)

// Raw returns the value as an interface{}, unwrapped from its typed field.
func (v TagValue) Raw() interface{} {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt64:
		return v.Int64
	case KindDouble:
		return v.Double
	case KindString:
		return v.String
	case KindBytes:
		return v.Bytes
	default:
		return nil
	}
}

// NewValue builds a TagValue from a Go value, choosing Kind by type and
// falling back to a string representation for anything unrecognized, per
// the encoding rule: "Unknown types fall back to string representation."
func NewValue(handle uint32, owner string, raw interface{}) TagValue {
	v := TagValue{Handle: handle, Timestamp: time.Now(), Quality: QualityGood, Owner: owner}
	switch x := raw.(type) {
	case bool:
		v.Kind = KindBool
		v.Bool = x
	case int:
		v.Kind = KindInt64
		v.Int64 = int64(x)
	case int64:
		v.Kind = KindInt64
		v.Int64 = x
	case float32:
		v.Kind = KindDouble
		v.Double = float64(x)
	case float64:
		v.Kind = KindDouble
		v.Double = x
	case string:
		v.Kind = KindString
		v.String = x
	case []byte:
		v.Kind = KindBytes
		v.Bytes = append([]byte(nil), x...)
	default:
		v.Kind = KindString
		v.String = stringify(x)
	}
	return v
}

func stringify(x interface{}) string {
	if s, ok := x.(interface{ String() string }); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", x)
}
