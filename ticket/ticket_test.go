package ticket_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunokim/causal-doc/ticket"
)

func actor(t *testing.T, last byte) ticket.ActorID {
	t.Helper()
	var id ticket.ActorID
	id[ticket.ActorIDSize-1] = last
	return id
}

func TestCompare(t *testing.T) {
	a1, a2 := actor(t, 1), actor(t, 2)
	tests := []struct {
		desc string
		t1   *ticket.Ticket
		t2   *ticket.Ticket
		want int
	}{
		{"lamport dominates", ticket.New(2, 0, a1), ticket.New(1, 9, a2), 1},
		{"actor breaks lamport ties", ticket.New(1, 9, a1), ticket.New(1, 0, a2), -1},
		{"delimiter breaks actor ties", ticket.New(1, 1, a1), ticket.New(1, 0, a1), 1},
		{"equal", ticket.New(3, 3, a2), ticket.New(3, 3, a2), 0},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			assert.Equal(t, test.want, test.t1.Compare(test.t2))
			assert.Equal(t, -test.want, test.t2.Compare(test.t1))
			assert.Equal(t, test.want > 0, test.t1.After(test.t2))
		})
	}
}

func TestInitialAndMaxBoundEverything(t *testing.T) {
	tk := ticket.New(10, 20, actor(t, 7))
	assert.True(t, tk.After(ticket.InitialTicket))
	assert.True(t, ticket.MaxTicket.After(tk))
	assert.False(t, ticket.InitialTicket.After(ticket.InitialTicket))
}

func TestNext(t *testing.T) {
	a := actor(t, 1)
	assert.Equal(t, "1:01:1", ticket.New(1, 0, a).Next().ToTestString())
	assert.Equal(t, "2:01:0", ticket.New(1, ticket.MaxDelimiter, a).Next().ToTestString())
}

func TestSortTickets(t *testing.T) {
	a1, a2 := actor(t, 1), actor(t, 2)
	tickets := []*ticket.Ticket{
		ticket.New(2, 0, a1),
		ticket.New(1, 1, a2),
		ticket.New(1, 0, a2),
		ticket.New(1, 5, a1),
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[j].After(tickets[i]) })
	var got []string
	for _, tk := range tickets {
		got = append(got, tk.ToTestString())
	}
	want := []string{"1:01:5", "1:02:0", "1:02:1", "2:01:0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sorted tickets (-want, +got):\n%s", diff)
	}
}

func TestActorIDHex(t *testing.T) {
	id, err := ticket.ActorIDFromHex("000000000000000000000abc")
	require.NoError(t, err)
	assert.Equal(t, "000000000000000000000abc", id.String())

	_, err = ticket.ActorIDFromHex("abc")
	assert.True(t, errors.Is(err, ticket.ErrInvalidActorID))
	_, err = ticket.ActorIDFromHex("zz0000000000000000000abc")
	assert.True(t, errors.Is(err, ticket.ErrInvalidActorID))

	text, err := id.MarshalText()
	require.NoError(t, err)
	var decoded ticket.ActorID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, id, decoded)
}
