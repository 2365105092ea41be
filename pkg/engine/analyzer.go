package engine

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/ktye/fft"
	"github.com/viterin/vek/vek32"
)

// DefaultAnalyzerSize is the analysis window in samples
const DefaultAnalyzerSize = 4096

// Analyzer keeps the most recent mix bus output for display: signal level
// and a magnitude spectrum
type Analyzer struct {
	mu     sync.Mutex
	rate   float64
	ring   []float32
	pos    int
	fft    fft.FFT
	window []float64
	frame  []float32
	sq     []float32
	buf    []complex128
}

// NewAnalyzer creates an analyzer over the last size samples. size must be a
// power of two.
func NewAnalyzer(size, sampleRate int) (*Analyzer, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("analyzer size %d is not a power of two", size)
	}
	f, err := fft.New(size)
	if err != nil {
		return nil, fmt.Errorf("cannot create fft: %w", err)
	}
	window := make([]float64, size)
	for i := range window {
		window[i] = (1 - math.Cos(2*math.Pi*float64(i)/float64(size))) / 2
	}
	return &Analyzer{
		rate:   float64(sampleRate),
		ring:   make([]float32, size),
		fft:    f,
		window: window,
		frame:  make([]float32, size),
		sq:     make([]float32, size),
		buf:    make([]complex128, size),
	}, nil
}

// Size returns the window length in samples
func (a *Analyzer) Size() int {
	return len(a.ring)
}

// Write appends samples to the analysis window
func (a *Analyzer) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(samples) >= len(a.ring) {
		copy(a.ring, samples[len(samples)-len(a.ring):])
		a.pos = 0
		return
	}
	n := copy(a.ring[a.pos:], samples)
	if n < len(samples) {
		copy(a.ring, samples[n:])
	}
	a.pos = (a.pos + len(samples)) % len(a.ring)
}

// ordered copies the ring, oldest sample first, into a.frame
func (a *Analyzer) ordered() []float32 {
	n := copy(a.frame, a.ring[a.pos:])
	copy(a.frame[n:], a.ring[:a.pos])
	return a.frame
}

// Level returns the RMS of the window
func (a *Analyzer) Level() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.ordered()
	return math.Sqrt(float64(vek32.Mean(vek32.Mul_Into(a.sq, s, s))))
}

// Spectrum returns magnitudes of bins 0..size/2 of the Hann windowed frame
func (a *Analyzer) Spectrum() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.ordered()
	for i, x := range s {
		a.buf[i] = complex(float64(x)*a.window[i], 0)
	}
	a.buf = a.fft.Transform(a.buf)
	mags := make([]float64, len(a.buf)/2+1)
	for i := range mags {
		mags[i] = cmplx.Abs(a.buf[i])
	}
	return mags
}

// PeakFrequency returns the centre frequency of the loudest non-DC bin, or 0
// when the window is silent
func (a *Analyzer) PeakFrequency() float64 {
	mags := a.Spectrum()
	peak, best := 0, 0.0
	for i := 1; i < len(mags); i++ {
		if mags[i] > best {
			peak, best = i, mags[i]
		}
	}
	if best < 1e-9 {
		return 0
	}
	return float64(peak) * a.rate / float64(len(a.ring))
}
