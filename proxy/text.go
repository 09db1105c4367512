package proxy

import (
	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/crdt"
	"github.com/brunokim/causal-doc/diff"
	"github.com/brunokim/causal-doc/operations"
)

// Text is the handle of a text. Positions are in UTF-16 code units.
type Text struct {
	ctx  *change.Context
	text *crdt.Text
}

// NewText creates the handle of text within an update.
func NewText(ctx *change.Context, text *crdt.Text) *Text {
	return &Text{ctx: ctx, text: text}
}

// Element returns the underlying element.
func (p *Text) Element() *crdt.Text {
	return p.text
}

// Edit replaces [from, to) with content, styled by attributes if given.
func (p *Text) Edit(from, to int, content string, attributes ...map[string]string) error {
	if err := checkWritable(p.ctx); err != nil {
		return err
	}
	if err := validateRange(from, to, p.text.Len()); err != nil {
		return err
	}
	if from == to && content == "" {
		return nil
	}
	fromPos, toPos, err := p.text.CreateRange(from, to)
	if err != nil {
		return err
	}
	var attrs map[string]string
	if len(attributes) > 0 {
		attrs = attributes[0]
	}
	return p.ctx.Execute(operations.NewEdit(p.text.CreatedAt(), fromPos, toPos, nil, content, attrs, p.ctx.IssueTimeTicket()))
}

// Style sets attributes on [from, to).
func (p *Text) Style(from, to int, attributes map[string]string) error {
	if err := checkWritable(p.ctx); err != nil {
		return err
	}
	if err := validateRange(from, to, p.text.Len()); err != nil {
		return err
	}
	fromPos, toPos, err := p.text.CreateRange(from, to)
	if err != nil {
		return err
	}
	return p.ctx.Execute(operations.NewStyle(p.text.CreatedAt(), fromPos, toPos, nil, attributes, p.ctx.IssueTimeTicket()))
}

// Replace changes the whole text into content with the fewest edits, so that
// concurrent edits elsewhere in the text are kept.
func (p *Text) Replace(content string) error {
	hunks, err := diff.Hunks(p.text.String(), content)
	if err != nil {
		return err
	}
	for i := len(hunks) - 1; i >= 0; i-- {
		h := hunks[i]
		if err := p.Edit(h.From, h.To, h.Insert); err != nil {
			return err
		}
	}
	return nil
}

// String returns the visible text.
func (p *Text) String() string {
	return p.text.String()
}

// Len returns the length in UTF-16 code units.
func (p *Text) Len() int {
	return p.text.Len()
}

// Marshal returns the JSON of the text with its styles.
func (p *Text) Marshal() string {
	return p.text.Marshal()
}
