package synth

// SynthBuilderOption is a functional option for configuring a Synth.
type SynthBuilderOption func(*Synth)

// WithWorkers sets the number of goroutines shading rows during Render.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SynthBuilderOption: option function to apply
func WithWorkers(n int) SynthBuilderOption {
	return func(s *Synth) {
		s.workers = max(n, 1)
	}
}
