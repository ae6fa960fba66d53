package mask

import (
	"errors"
	"fmt"
)

// DefaultTolerance is the per-channel distance used when none is configured.
const DefaultTolerance = 4

// ReasonSeedNotWhite explains a skip caused by a non-white top-left pixel.
const ReasonSeedNotWhite = "seed not pure white"

// ErrInvalidTolerance is returned for negative tolerances.
var ErrInvalidTolerance = errors.New("tolerance must be >= 0")

// Status tags the result of a mask call.
type Status string

// Outcome statuses.
const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
)

// Outcome reports what Apply did to a buffer.
type Outcome struct {
	Status        Status `json:"status"`
	PixelsCleared int    `json:"pixels_cleared,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Applied builds an outcome for a completed fill.
func Applied(pixelsCleared int) Outcome {
	return Outcome{Status: StatusApplied, PixelsCleared: pixelsCleared}
}

// Skipped builds an outcome for an image that was left untouched.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// IsApplied reports whether the buffer was modified.
func (o Outcome) IsApplied() bool {
	return o.Status == StatusApplied
}

func (o Outcome) String() string {
	if o.Status == StatusSkipped {
		return fmt.Sprintf("Skipped(%q)", o.Reason)
	}
	return fmt.Sprintf("Applied(pixelsCleared: %d)", o.PixelsCleared)
}

// Matches reports whether candidate is within tolerance of seed on every
// colour channel. The comparison is strict: a difference equal to the
// tolerance does not match.
func Matches(seed, candidate RGB, tolerance int) bool {
	return absDiff(seed.R, candidate.R) < tolerance &&
		absDiff(seed.G, candidate.G) < tolerance &&
		absDiff(seed.B, candidate.B) < tolerance
}

// Apply makes the 4-connected region of seed-coloured pixels containing (0,0)
// fully transparent. The buffer is mutated in place and only alpha bytes
// change. A top-left pixel that is not exactly white leaves the buffer
// byte-identical and yields a Skipped outcome.
func Apply(buf *Buffer, tolerance int) (Outcome, error) {
	if err := buf.Validate(); err != nil {
		return Outcome{}, err
	}
	if tolerance < 0 {
		return Outcome{}, fmt.Errorf("%w: got %d", ErrInvalidTolerance, tolerance)
	}

	seed := buf.RGB(0, 0)
	if seed != White {
		return Skipped(ReasonSeedNotWhite), nil
	}

	w, h := buf.Width, buf.Height
	// one marker per pixel, set when a pixel is first evaluated
	visited := make([]bool, w*h)
	// frontier holds packed indices y*w+x and is consumed LIFO
	frontier := make([]int, 0, 64)

	visited[0] = true
	frontier = append(frontier, 0)
	cleared := 0

	for len(frontier) > 0 {
		idx := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		x, y := idx%w, idx/w
		buf.Pix[idx*BytesPerPixel+ChannelA] = 0
		cleared++

		for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
			nx, ny := n[0], n[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			ni := ny*w + nx
			if visited[ni] {
				continue
			}
			visited[ni] = true
			if Matches(seed, buf.RGB(nx, ny), tolerance) {
				frontier = append(frontier, ni)
			}
		}
	}

	return Applied(cleared), nil
}

// Engine carries a fixed tolerance so callers can hold a configured masker.
type Engine struct {
	Tolerance int
}

// NewEngine builds an Engine, rejecting negative tolerances.
func NewEngine(tolerance int) (*Engine, error) {
	if tolerance < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTolerance, tolerance)
	}
	return &Engine{Tolerance: tolerance}, nil
}

// Mask runs Apply with the engine's tolerance.
func (e *Engine) Mask(buf *Buffer) (Outcome, error) {
	return Apply(buf, e.Tolerance)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
