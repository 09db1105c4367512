package crdt

import (
	"fmt"
	"strconv"

	"github.com/brunokim/causal-doc/ticket"
)

// CounterType is the integer size of a counter.
type CounterType int

const (
	IntegerCnt CounterType = iota
	LongCnt
)

// Counter is a number that only changes by increments, so concurrent increases commute.
type Counter struct {
	elementTimes
	valueType CounterType
	value     interface{}
}

// NewCounter creates a counter from any Go number.
func NewCounter(valueType CounterType, value interface{}, createdAt *ticket.Ticket) (*Counter, error) {
	n, err := toInt64(value)
	if err != nil {
		return nil, err
	}
	c := &Counter{
		elementTimes: elementTimes{createdAt: createdAt},
		valueType:    valueType,
	}
	switch valueType {
	case IntegerCnt:
		c.value = int32(n)
	case LongCnt:
		c.value = n
	default:
		return nil, fmt.Errorf("counter type %d: %w", valueType, ErrUnsupportedType)
	}
	return c, nil
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("number of %T: %w", value, ErrUnsupportedType)
}

// ValueType returns the integer size.
func (c *Counter) ValueType() CounterType {
	return c.valueType
}

// Value returns the current value, an int32 or int64.
func (c *Counter) Value() interface{} {
	return c.value
}

// Increase adds a numeric primitive to the counter. Integer counters wrap around on
// overflow, like every replica does.
func (c *Counter) Increase(v *Primitive) (*Counter, error) {
	if !v.IsNumericType() {
		return nil, fmt.Errorf("increase by %s: %w", v.ValueType(), ErrUnsupportedType)
	}
	delta, err := toInt64(v.Value())
	if err != nil {
		return nil, err
	}
	switch value := c.value.(type) {
	case int32:
		c.value = value + int32(delta)
	case int64:
		c.value = value + delta
	}
	return c, nil
}

// Marshal returns the JSON form of the counter.
func (c *Counter) Marshal() string {
	return toJSON(c, false)
}

func (c *Counter) marshalValue() string {
	switch v := c.value.(type) {
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	panic(fmt.Sprintf("marshalValue: unexpected counter value %T", c.value))
}

// DeepCopy copies the counter.
func (c *Counter) DeepCopy() (Element, error) {
	return &Counter{
		elementTimes: c.copyTimes(),
		valueType:    c.valueType,
		value:        c.value,
	}, nil
}
