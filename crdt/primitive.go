package crdt

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/brunokim/causal-doc/ticket"
)

// ValueType is the type of a primitive.
type ValueType int

const (
	Null ValueType = iota
	Boolean
	Integer
	Long
	Double
	String
	Bytes
	Date
)

func (t ValueType) String() string {
	switch t {
	case Null:
		return "null"
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	case Long:
		return "long"
	case Double:
		return "double"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Date:
		return "date"
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// Primitive is an immutable leaf value.
type Primitive struct {
	elementTimes
	valueType ValueType
	value     interface{}
}

// NewPrimitive creates a primitive from a Go value. Ints are stored as integers, int64
// as longs, and floats as doubles.
func NewPrimitive(value interface{}, createdAt *ticket.Ticket) (*Primitive, error) {
	p := &Primitive{elementTimes: elementTimes{createdAt: createdAt}}
	switch v := value.(type) {
	case nil:
		p.valueType = Null
	case bool:
		p.valueType, p.value = Boolean, v
	case int32:
		p.valueType, p.value = Integer, v
	case int:
		p.valueType, p.value = Integer, int32(v)
	case int64:
		p.valueType, p.value = Long, v
	case float32:
		p.valueType, p.value = Double, float64(v)
	case float64:
		p.valueType, p.value = Double, v
	case string:
		p.valueType, p.value = String, v
	case []byte:
		bs := make([]byte, len(v))
		copy(bs, v)
		p.valueType, p.value = Bytes, bs
	case time.Time:
		p.valueType, p.value = Date, v
	default:
		return nil, fmt.Errorf("primitive of %T: %w", value, ErrUnsupportedType)
	}
	return p, nil
}

// ValueType returns the type of the primitive.
func (p *Primitive) ValueType() ValueType {
	return p.valueType
}

// Value returns the Go value of the primitive.
func (p *Primitive) Value() interface{} {
	return p.value
}

// IsNumericType returns whether the primitive can increase a counter.
func (p *Primitive) IsNumericType() bool {
	switch p.valueType {
	case Integer, Long, Double:
		return true
	}
	return false
}

// Bytes encodes the value in its wire form.
func (p *Primitive) Bytes() []byte {
	switch v := p.value.(type) {
	case bool:
		if v {
			return []byte{1}
		}
		return []byte{0}
	case int32:
		bs := make([]byte, 4)
		binary.LittleEndian.PutUint32(bs, uint32(v))
		return bs
	case int64:
		bs := make([]byte, 8)
		binary.LittleEndian.PutUint64(bs, uint64(v))
		return bs
	case float64:
		bs := make([]byte, 8)
		binary.LittleEndian.PutUint64(bs, math.Float64bits(v))
		return bs
	case string:
		return []byte(v)
	case []byte:
		return v
	case time.Time:
		bs := make([]byte, 8)
		binary.LittleEndian.PutUint64(bs, uint64(v.UnixMilli()))
		return bs
	}
	return nil
}

// PrimitiveValueFromBytes decodes the wire form of a value.
func PrimitiveValueFromBytes(valueType ValueType, bs []byte) (interface{}, error) {
	size := map[ValueType]int{Boolean: 1, Integer: 4, Long: 8, Double: 8, Date: 8}
	if n, ok := size[valueType]; ok && len(bs) != n {
		return nil, fmt.Errorf("%d bytes for %s: %w", len(bs), valueType, ErrUnsupportedType)
	}
	switch valueType {
	case Null:
		return nil, nil
	case Boolean:
		return bs[0] == 1, nil
	case Integer:
		return int32(binary.LittleEndian.Uint32(bs)), nil
	case Long:
		return int64(binary.LittleEndian.Uint64(bs)), nil
	case Double:
		return math.Float64frombits(binary.LittleEndian.Uint64(bs)), nil
	case String:
		return string(bs), nil
	case Bytes:
		return bs, nil
	case Date:
		return time.UnixMilli(int64(binary.LittleEndian.Uint64(bs))).UTC(), nil
	}
	return nil, fmt.Errorf("%s: %w", valueType, ErrUnsupportedType)
}

// Marshal returns the JSON form of the value.
func (p *Primitive) Marshal() string {
	return toJSON(p, false)
}

func (p *Primitive) marshalValue() string {
	switch v := p.value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return `"` + EscapeString(v) + `"`
	case []byte:
		return `"` + EscapeString(string(v)) + `"`
	case time.Time:
		return `"` + v.UTC().Format(time.RFC3339Nano) + `"`
	}
	panic(fmt.Sprintf("marshalValue: unexpected primitive value %T", p.value))
}

// DeepCopy copies the primitive.
func (p *Primitive) DeepCopy() (Element, error) {
	value := p.value
	if bs, ok := value.([]byte); ok {
		value = append([]byte(nil), bs...)
	}
	return &Primitive{
		elementTimes: p.copyTimes(),
		valueType:    p.valueType,
		value:        value,
	}, nil
}
