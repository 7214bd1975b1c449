package sigil

import (
	"fmt"

	"github.com/nvandessel/sigilgate/internal/geometry"
)

// Zigzag returns n anchors alternating between y=0 and y=amplitude, spaced
// step apart on x. The first is the entry and the last the exit.
func Zigzag(n int, step, amplitude float64) []Anchor {
	anchors := make([]Anchor, n)
	for i := range anchors {
		y := 0.0
		if i%2 == 1 {
			y = amplitude
		}
		anchors[i] = Anchor{
			ID:  fmt.Sprintf("a%d", i),
			Pos: geometry.Pt(float64(i)*step, y),
		}
	}
	if n > 0 {
		anchors[0].IsEntry = true
		anchors[n-1].IsExit = true
	}
	return anchors
}
