package diff_test

import (
	"fmt"

	"github.com/brunokim/causal-doc/diff"
)

func ExampleHunks() {
	hunks, _ := diff.Hunks("the cat sat", "the hat sat down")
	for _, h := range hunks {
		fmt.Printf("[%d,%d) %q\n", h.From, h.To, h.Insert)
	}
	// Output:
	// [4,5) "h"
	// [11,11) " down"
}
