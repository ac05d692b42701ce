package interlace_test

import (
	"fmt"

	"pngpipe.adpollak.net/internal/interlace"
)

func ExampleCols() {
	for p := 0; p < interlace.Passes; p++ {
		fmt.Printf("pass %d: %dx%d\n", p+1, interlace.Cols(10, p), interlace.Rows(10, p))
	}
	// Output:
	// pass 1: 2x2
	// pass 2: 1x2
	// pass 3: 3x1
	// pass 4: 2x3
	// pass 5: 5x2
	// pass 6: 5x5
	// pass 7: 10x5
}
