package proxy

import (
	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
)

// Counter is the handle of a counter.
type Counter struct {
	ctx     *change.Context
	counter *crdt.Counter
}

// NewCounter creates the handle of counter within an update.
func NewCounter(ctx *change.Context, counter *crdt.Counter) *Counter {
	return &Counter{ctx: ctx, counter: counter}
}

// Element returns the underlying element.
func (p *Counter) Element() *crdt.Counter {
	return p.counter
}

// Increase adds a number to the counter.
func (p *Counter) Increase(v interface{}) error {
	if err := checkWritable(p.ctx); err != nil {
		return err
	}
	at := p.ctx.IssueTimeTicket()
	value, err := crdt.NewPrimitive(v, at)
	if err != nil {
		return err
	}
	if !value.IsNumericType() {
		return errorf(crdt.ErrUnsupportedType, "increase by %s", value.ValueType())
	}
	return p.ctx.Execute(operations.NewIncrease(p.counter.CreatedAt(), value, at))
}

// Value returns the current value.
func (p *Counter) Value() interface{} {
	return p.counter.Value()
}
