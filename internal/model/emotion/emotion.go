package emotion

import "strings"

// Emotion is a label from the closed classifier set plus Unknown.
type Emotion string

const (
	Joy     Emotion = "joy"
	Sadness Emotion = "sadness"
	Anger   Emotion = "anger"
	Fear    Emotion = "fear"
	Unknown Emotion = "unknown"
)

// Known lists the closed set in classifier index order.
var Known = []Emotion{Joy, Sadness, Anger, Fear}

// Distribution maps each emotion to the classifier confidence. Scores are
// independent per label and need not sum to one.
type Distribution map[Emotion]float64

// Parse maps a raw label onto the closed set, returning Unknown for anything else.
func Parse(raw string) Emotion {
	switch e := Emotion(strings.ToLower(strings.TrimSpace(raw))); e {
	case Joy, Sadness, Anger, Fear:
		return e
	default:
		return Unknown
	}
}

// Valid reports whether e belongs to the closed set or is Unknown.
func (e Emotion) Valid() bool {
	return e == Unknown || Parse(string(e)) != Unknown
}

func (e Emotion) String() string {
	return string(e)
}

// Best returns the highest scoring emotion, Unknown for an empty distribution.
// Ties resolve to the earlier emotion in Known.
func (d Distribution) Best() Emotion {
	best := Unknown
	bestScore := -1.0
	for _, e := range Known {
		score, ok := d[e]
		if !ok {
			continue
		}
		if score > bestScore {
			best = e
			bestScore = score
		}
	}
	return best
}

// Clone returns an independent copy of d.
func (d Distribution) Clone() Distribution {
	if d == nil {
		return nil
	}
	out := make(Distribution, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
