package mask

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	black = RGB{}
	gray  = RGB{R: 128, G: 128, B: 128}
)

func filled(t *testing.T, w, h int, c RGB) *Buffer {
	t.Helper()
	buf, err := NewBuffer(w, h)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.Set(x, y, c, 255)
		}
	}
	return buf
}

func TestApplySinglePixel(t *testing.T) {
	t.Parallel()

	buf := filled(t, 1, 1, White)
	out, err := Apply(buf, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, Applied(1), out)
	assert.Equal(t, uint8(0), buf.Alpha(0, 0))
	assert.Equal(t, White, buf.RGB(0, 0), "colour channels must survive")
}

func TestApplyLeavesEnclosedCenterOpaque(t *testing.T) {
	t.Parallel()

	buf := filled(t, 3, 3, White)
	buf.Set(1, 1, black, 255)

	out, err := Apply(buf, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, 8, out.PixelsCleared)

	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if x == 1 && y == 1 {
				assert.Equal(t, uint8(255), buf.Alpha(x, y), "center pixel")
				continue
			}
			assert.Equal(t, uint8(0), buf.Alpha(x, y), "border pixel (%d,%d)", x, y)
		}
	}
}

func TestApplySkipsNonWhiteSeed(t *testing.T) {
	t.Parallel()

	buf := filled(t, 2, 2, gray)
	before := buf.Clone()

	out, err := Apply(buf, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, ReasonSeedNotWhite, out.Reason)
	assert.Equal(t, before.Pix, buf.Pix)
}

func TestApplySkipsNearWhiteSeed(t *testing.T) {
	t.Parallel()

	buf := filled(t, 4, 4, White)
	buf.Set(0, 0, RGB{R: 254, G: 255, B: 255}, 255)
	before := buf.Clone()

	out, err := Apply(buf, 10)
	require.NoError(t, err)
	assert.False(t, out.IsApplied())
	assert.Equal(t, before.Pix, buf.Pix)
}

func TestApplySplitHalvesWithoutDiagonalBleed(t *testing.T) {
	t.Parallel()

	buf := filled(t, 4, 4, White)
	for y := 0; y < 4; y++ {
		buf.Set(2, y, black, 255)
		buf.Set(3, y, black, 255)
	}
	// white but only reachable through black neighbours
	buf.Set(3, 3, White, 255)

	out, err := Apply(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, out.PixelsCleared)

	for y := 0; y < 4; y++ {
		assert.Equal(t, uint8(0), buf.Alpha(0, y))
		assert.Equal(t, uint8(0), buf.Alpha(1, y))
		assert.Equal(t, uint8(255), buf.Alpha(2, y))
		assert.Equal(t, uint8(255), buf.Alpha(3, y))
	}
}

func TestApplyIsFourConnected(t *testing.T) {
	t.Parallel()

	buf := filled(t, 2, 2, White)
	buf.Set(1, 0, black, 255)
	buf.Set(0, 1, black, 255)

	out, err := Apply(buf, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, 1, out.PixelsCleared)
	assert.Equal(t, uint8(255), buf.Alpha(1, 1), "diagonal neighbour must stay opaque")
}

func TestApplyToleranceBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		neighbour RGB
		wantAlpha uint8
	}{
		{name: "difference equal to tolerance", neighbour: RGB{R: 251, G: 251, B: 251}, wantAlpha: 255},
		{name: "difference below tolerance", neighbour: RGB{R: 252, G: 252, B: 252}, wantAlpha: 0},
		{name: "single channel at tolerance", neighbour: RGB{R: 255, G: 251, B: 255}, wantAlpha: 255},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := filled(t, 2, 1, White)
			buf.Set(1, 0, tc.neighbour, 255)

			_, err := Apply(buf, 4)
			require.NoError(t, err)
			assert.Equal(t, uint8(0), buf.Alpha(0, 0))
			assert.Equal(t, tc.wantAlpha, buf.Alpha(1, 0))
		})
	}
}

func TestApplyZeroToleranceClearsOnlySeed(t *testing.T) {
	t.Parallel()

	buf := filled(t, 3, 3, White)
	out, err := Apply(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, out.PixelsCleared)
}

func TestApplyRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  *Buffer
		tol  int
		want error
	}{
		{name: "nil buffer", buf: nil, tol: 4, want: ErrInvalidBuffer},
		{name: "zero width", buf: &Buffer{Pix: []byte{}, Width: 0, Height: 1}, tol: 4, want: ErrInvalidBuffer},
		{name: "negative height", buf: &Buffer{Pix: []byte{}, Width: 1, Height: -1}, tol: 4, want: ErrInvalidBuffer},
		{name: "short pix", buf: &Buffer{Pix: make([]byte, 7), Width: 2, Height: 1}, tol: 4, want: ErrInvalidBuffer},
		{name: "long pix", buf: &Buffer{Pix: make([]byte, 12), Width: 2, Height: 1}, tol: 4, want: ErrInvalidBuffer},
		{name: "three channel pix", buf: &Buffer{Pix: make([]byte, 12), Width: 2, Height: 2}, tol: 4, want: ErrInvalidBuffer},
		{name: "negative tolerance", buf: &Buffer{Pix: make([]byte, 4), Width: 1, Height: 1}, tol: -1, want: ErrInvalidTolerance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var before []byte
			if tc.buf != nil {
				before = slices.Clone(tc.buf.Pix)
			}
			_, err := Apply(tc.buf, tc.tol)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			if tc.buf != nil {
				assert.Equal(t, before, tc.buf.Pix, "invalid input must not be touched")
			}
		})
	}
}

func TestApplyIdempotent(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		buf := randomBuffer(rng, 1+rng.Intn(12), 1+rng.Intn(12))
		_, err := Apply(buf, DefaultTolerance)
		require.NoError(t, err)
		once := append([]byte(nil), buf.Pix...)

		_, err = Apply(buf, DefaultTolerance)
		require.NoError(t, err)
		assert.Equal(t, once, buf.Pix)
	}
}

func TestApplyMatchesReferenceRegion(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		w, h := 1+rng.Intn(16), 1+rng.Intn(16)
		buf := randomBuffer(rng, w, h)
		orig := buf.Clone()
		tol := rng.Intn(8)

		out, err := Apply(buf, tol)
		require.NoError(t, err)

		region := referenceRegion(orig, tol)
		if orig.RGB(0, 0) != White {
			assert.Equal(t, StatusSkipped, out.Status)
			assert.Equal(t, orig.Pix, buf.Pix)
			continue
		}
		assert.Equal(t, len(region), out.PixelsCleared)

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := orig.Offset(x, y)
				assert.Equal(t, orig.Pix[i:i+3], buf.Pix[i:i+3], "rgb changed at (%d,%d)", x, y)
				if region[y*w+x] {
					assert.Equal(t, uint8(0), buf.Alpha(x, y), "region pixel (%d,%d)", x, y)
				} else {
					assert.Equal(t, orig.Alpha(x, y), buf.Alpha(x, y), "outside pixel (%d,%d)", x, y)
				}
			}
		}
	}
}

func TestEngineUsesConfiguredTolerance(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(-3)
	require.ErrorIs(t, err, ErrInvalidTolerance)

	engine, err := NewEngine(10)
	require.NoError(t, err)

	buf := filled(t, 2, 1, White)
	buf.Set(1, 0, RGB{R: 250, G: 250, B: 250}, 255)
	out, err := engine.Mask(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, out.PixelsCleared)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Applied(pixelsCleared: 3)", Applied(3).String())
	assert.Equal(t, `Skipped("seed not pure white")`, Skipped(ReasonSeedNotWhite).String())
}

// randomBuffer mixes white, near-white and dark pixels with random alpha so
// regions of every shape show up.
func randomBuffer(rng *rand.Rand, w, h int) *Buffer {
	buf := &Buffer{Pix: make([]byte, w*h*BytesPerPixel), Width: w, Height: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c RGB
			switch rng.Intn(4) {
			case 0, 1:
				c = White
			case 2:
				v := uint8(248 + rng.Intn(8))
				c = RGB{R: v, G: 255 - uint8(rng.Intn(6)), B: v}
			default:
				c = RGB{R: uint8(rng.Intn(200)), G: uint8(rng.Intn(200)), B: uint8(rng.Intn(200))}
			}
			buf.Set(x, y, c, uint8(rng.Intn(256)))
		}
	}
	if rng.Intn(5) > 0 {
		buf.Set(0, 0, White, buf.Alpha(0, 0))
	}
	return buf
}

// referenceRegion is a breadth-first fill used to cross-check Apply's
// depth-first traversal.
func referenceRegion(buf *Buffer, tol int) map[int]bool {
	region := map[int]bool{}
	if buf.RGB(0, 0) != White {
		return region
	}
	w := buf.Width
	queue := []int{0}
	region[0] = true
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		x, y := idx%w, idx/w
		for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if !buf.InBounds(nx, ny) {
				continue
			}
			ni := ny*w + nx
			if region[ni] || !Matches(White, buf.RGB(nx, ny), tol) {
				continue
			}
			region[ni] = true
			queue = append(queue, ni)
		}
	}
	return region
}
