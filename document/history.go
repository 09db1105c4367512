package document

import (
	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/operations"
	"github.com/brunokim/causal-doc/presence"
	"github.com/brunokim/causal-doc/ticket"
)

// MaxUndoDepth is the default number of entries kept in each history stack.
const MaxUndoDepth = 50

// historyEntry is what undoes, or redoes, one local change: the operations that revert
// it, and the previous values of the presence keys it set.
type historyEntry struct {
	ops      []operations.Operation
	presence presence.Data
}

// History holds the undo and redo stacks of a document. Undoing applies the reverse of
// the last local change as a new local change, and stacks its own reverse for redo.
// Remote changes are never undone, and a reverse operation whose target was removed by
// someone else is skipped.
type History struct {
	doc       *Document
	maxDepth  int
	undoStack []historyEntry
	redoStack []historyEntry
}

// CanUndo returns whether there is a change to undo.
func (h *History) CanUndo() bool {
	return len(h.undoStack) > 0
}

// CanRedo returns whether there is an undone change to redo.
func (h *History) CanRedo() bool {
	return len(h.redoStack) > 0
}

// Undo reverts the last local change.
func (h *History) Undo() error {
	if h.doc.isUpdating {
		return ErrUndoDuringUpdate
	}
	if !h.CanUndo() {
		return ErrNothingToUndo
	}
	entry := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	reverse, err := h.doc.applyHistoryEntry(entry, "undo")
	if err != nil {
		return err
	}
	h.redoStack = push(h.redoStack, reverse, h.maxDepth)
	return nil
}

// Redo reapplies the last undone change.
func (h *History) Redo() error {
	if h.doc.isUpdating {
		return ErrUndoDuringUpdate
	}
	if !h.CanRedo() {
		return ErrNothingToRedo
	}
	entry := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	reverse, err := h.doc.applyHistoryEntry(entry, "redo")
	if err != nil {
		return err
	}
	h.undoStack = push(h.undoStack, reverse, h.maxDepth)
	return nil
}

func (h *History) pushUndo(entry historyEntry) {
	h.undoStack = push(h.undoStack, entry, h.maxDepth)
}

func (h *History) clearRedo() {
	h.redoStack = nil
}

// reconcileCreatedAt retargets the stacked operations from an element recreated at curr.
func (h *History) reconcileCreatedAt(prev, curr *ticket.Ticket) {
	for _, stack := range [][]historyEntry{h.undoStack, h.redoStack} {
		for _, entry := range stack {
			for _, op := range entry.ops {
				op.ReconcileCreatedAt(prev, curr)
			}
		}
	}
}

func push(stack []historyEntry, entry historyEntry, maxDepth int) []historyEntry {
	if len(entry.ops) == 0 && entry.presence == nil {
		return stack
	}
	stack = append(stack, entry)
	if maxDepth > 0 && len(stack) > maxDepth {
		stack = append(stack[:0:0], stack[len(stack)-maxDepth:]...)
	}
	return stack
}

// applyHistoryEntry applies entry as a new local change, and returns the entry that
// reverts it.
func (d *Document) applyHistoryEntry(entry historyEntry, message string) (historyEntry, error) {
	if d.status == Removed {
		return historyEntry{}, ErrDocumentRemoved
	}
	if err := d.ensureClone(); err != nil {
		return historyEntry{}, err
	}
	ctx := change.NewContext(d.changeID.Next(), message, d.clone)
	for _, op := range entry.ops {
		// Restored values take fresh tickets, since their old ones may still be in use
		// by tombstones.
		if set, ok := op.(*operations.Set); ok {
			prev := set.Value().CreatedAt()
			if err := set.RenewValue(ctx.IssueTimeTicket); err != nil {
				return historyEntry{}, err
			}
			curr := set.Value().CreatedAt()
			d.history.reconcileCreatedAt(prev, curr)
			for _, other := range entry.ops {
				other.ReconcileCreatedAt(prev, curr)
			}
		} else {
			op.SetExecutedAt(ctx.IssueTimeTicket())
		}
		infos, _, err := op.Execute(d.clone, operations.SourceUndoRedo)
		if err != nil {
			d.resetClone()
			return historyEntry{}, err
		}
		// Skipped: the target was removed meanwhile.
		if len(infos) == 0 {
			continue
		}
		ctx.Push(op)
	}

	var reversePresence presence.Data
	if entry.presence != nil {
		actor := d.changeID.ActorID().String()
		current, _ := d.clonePresences.Load(actor)
		reversePresence = make(presence.Data, len(entry.presence))
		for key := range entry.presence {
			reversePresence[key] = current[key]
		}
		ctx.SetPresenceChange(presence.Change{Type: presence.Put, Presence: presence.Apply(current, entry.presence)})
	}

	if !ctx.HasChange() {
		return historyEntry{presence: reversePresence}, nil
	}
	c := ctx.ToChange()
	infos, reverseOps, err := d.applyLocalChange(c, operations.SourceUndoRedo)
	if err != nil {
		return historyEntry{}, err
	}
	d.publishLocal(c, infos)
	return historyEntry{ops: reverseOps, presence: reversePresence}, nil
}
