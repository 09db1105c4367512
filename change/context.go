package change

import (
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/presence"
	"github.com/brunokim/causal-doc/ticket"
)

// Context collects the operations of one update while they are applied to a copy of
// the document, issuing a distinct ticket to each of them.
type Context struct {
	id             ID
	message        string
	root           *crdt.Root
	operations     []operations.Operation
	delimiter      uint32
	presenceChange *presence.Change
}

// NewContext creates the context of the change with the given ID, applied to root.
func NewContext(id ID, message string, root *crdt.Root) *Context {
	return &Context{
		id:        id,
		message:   message,
		root:      root,
		delimiter: ticket.InitialDelimiter,
	}
}

// ID returns the ID of the change.
func (c *Context) ID() ID {
	return c.id
}

// Root returns the copy of the document being updated.
func (c *Context) Root() *crdt.Root {
	return c.root
}

// IssueTimeTicket returns a new ticket of the change.
func (c *Context) IssueTimeTicket() *ticket.Ticket {
	c.delimiter++
	return c.id.NewTimeTicket(c.delimiter)
}

// LastTimeTicket returns the last ticket issued.
func (c *Context) LastTimeTicket() *ticket.Ticket {
	return c.id.NewTimeTicket(c.delimiter)
}

// Push adds an operation to the change.
func (c *Context) Push(op operations.Operation) {
	c.operations = append(c.operations, op)
}

// Execute applies op to the copy of the document and adds it to the change.
func (c *Context) Execute(op operations.Operation) error {
	if _, _, err := op.Execute(c.root, operations.SourceLocal); err != nil {
		return err
	}
	c.Push(op)
	return nil
}

// RegisterElement registers an element created by the change.
func (c *Context) RegisterElement(elem crdt.Element, parent crdt.Container) {
	c.root.RegisterElement(elem, parent)
}

// RegisterRemovedElement registers an element removed by the change.
func (c *Context) RegisterRemovedElement(elem crdt.Element) {
	c.root.RegisterRemovedElement(elem)
}

// RegisterGCPair registers a node removed inside an element by the change.
func (c *Context) RegisterGCPair(pair crdt.GCPair) {
	c.root.RegisterGCPair(pair)
}

// SetPresenceChange sets the presence change sent with the change.
func (c *Context) SetPresenceChange(change presence.Change) {
	c.presenceChange = &change
}

// HasChange returns whether the update changed anything.
func (c *Context) HasChange() bool {
	return len(c.operations) > 0 || c.presenceChange != nil
}

// ToChange creates the change.
func (c *Context) ToChange() *Change {
	return New(c.id, c.message, c.operations, c.presenceChange)
}
