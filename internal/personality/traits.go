package personality

// Traits are six independent scalars in [0, 1], read-only inputs to
// behavior probabilities and prompt assembly.
type Traits struct {
	Curiosity    float64 `json:"curiosity"`
	Cheerfulness float64 `json:"cheerfulness"`
	Verbosity    float64 `json:"verbosity"`
	Playfulness  float64 `json:"playfulness"`
	Empathy      float64 `json:"empathy"`
	Independence float64 `json:"independence"`
}

// DefaultTraits is the factory disposition for a new companion.
func DefaultTraits() Traits {
	return Traits{
		Curiosity:    0.8,
		Cheerfulness: 0.7,
		Verbosity:    0.5,
		Playfulness:  0.6,
		Empathy:      0.7,
		Independence: 0.4,
	}
}

// Clamp forces every trait into [0, 1].
func (t *Traits) Clamp() {
	t.Curiosity = clamp01(t.Curiosity)
	t.Cheerfulness = clamp01(t.Cheerfulness)
	t.Verbosity = clamp01(t.Verbosity)
	t.Playfulness = clamp01(t.Playfulness)
	t.Empathy = clamp01(t.Empathy)
	t.Independence = clamp01(t.Independence)
}

// baseline picks the idle mood the companion settles into when intensity
// decays away, biased by disposition.
func (t Traits) baseline() Mood {
	switch {
	case t.Cheerfulness > 0.6:
		return MoodHappy
	case t.Curiosity > 0.7:
		return MoodCurious
	default:
		return MoodCool
	}
}
