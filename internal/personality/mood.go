// Package personality holds the companion's mood state machine, traits,
// and progression, and fans in events from every other component.
package personality

import "time"

// Mood is one of a closed set of affective labels.
type Mood string

const (
	MoodHappy       Mood = "happy"
	MoodExcited     Mood = "excited"
	MoodCurious     Mood = "curious"
	MoodBored       Mood = "bored"
	MoodSad         Mood = "sad"
	MoodSleepy      Mood = "sleepy"
	MoodGrateful    Mood = "grateful"
	MoodLonely      Mood = "lonely"
	MoodIntense     Mood = "intense"
	MoodCool        Mood = "cool"
	MoodFocused     Mood = "focused"
	MoodMischievous Mood = "mischievous"
)

// moodInfo is the static face/energy table. Faces are keys into the
// front-end's face atlas; the core never renders them.
type moodInfo struct {
	face   string
	energy float64
}

var moodTable = map[Mood]moodInfo{
	MoodHappy:       {"face_happy", 0.8},
	MoodExcited:     {"face_excited", 1.0},
	MoodCurious:     {"face_curious", 0.7},
	MoodBored:       {"face_bored", 0.3},
	MoodSad:         {"face_sad", 0.2},
	MoodSleepy:      {"face_sleepy", 0.1},
	MoodGrateful:    {"face_grateful", 0.75},
	MoodLonely:      {"face_lonely", 0.25},
	MoodIntense:     {"face_intense", 0.95},
	MoodCool:        {"face_cool", 0.6},
	MoodFocused:     {"face_focused", 0.85},
	MoodMischievous: {"face_mischievous", 0.9},
}

// Valid reports whether m is in the closed mood set.
func (m Mood) Valid() bool {
	_, ok := moodTable[m]
	return ok
}

// Face returns the static face token for the mood.
func (m Mood) Face() string {
	if info, ok := moodTable[m]; ok {
		return info.face
	}
	return moodTable[MoodCool].face
}

// Energy returns the static energy value in [0, 1].
func (m Mood) Energy() float64 {
	if info, ok := moodTable[m]; ok {
		return info.energy
	}
	return moodTable[MoodCool].energy
}

const moodHistoryCap = 20

// MoodChange is one entry in the bounded mood history.
type MoodChange struct {
	Mood Mood      `json:"mood"`
	At   time.Time `json:"at"`
}

// MoodState tracks the current mood, its intensity, and recent transitions.
type MoodState struct {
	Current    Mood         `json:"current"`
	Intensity  float64      `json:"intensity"`
	LastChange time.Time    `json:"last_change"`
	History    []MoodChange `json:"history,omitempty"`
}

// Set transitions to mood m with intensity i (clamped to [0,1]), recording
// the previous mood in the bounded history.
func (s *MoodState) Set(m Mood, i float64, now time.Time) {
	if s.Current != "" {
		s.History = append(s.History, MoodChange{Mood: s.Current, At: s.LastChange})
		if len(s.History) > moodHistoryCap {
			s.History = s.History[len(s.History)-moodHistoryCap:]
		}
	}
	s.Current = m
	s.Intensity = clamp01(i)
	s.LastChange = now
}

// AdjustIntensity shifts intensity by delta within [floor, 1].
func (s *MoodState) AdjustIntensity(delta, floor float64) {
	v := s.Intensity + delta
	if v < floor {
		v = floor
	}
	if v > 1 {
		v = 1
	}
	s.Intensity = v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
