package fallback

// Synthesizer builds a substitute payload for a query. Payloads must have the same
// shape as live data.
type Synthesizer[Q, T any] interface {
	Synthesize(q Q) (T, error)
}

// SynthesizerFunc adapts a function into a Synthesizer.
type SynthesizerFunc[Q, T any] func(q Q) (T, error)

func (f SynthesizerFunc[Q, T]) Synthesize(q Q) (T, error) { return f(q) }
