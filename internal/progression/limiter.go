package progression

import (
	"strings"
	"time"
)

// awardLimiter is the anti-farming accountant: an hourly XP cap, a shared
// cooldown for chat-category sources, and a prompt-similarity penalty.
// It is deliberately separate from the operation limiter and the token
// budget; their reset cadences and penalty rules differ.
type awardLimiter struct {
	now func() time.Time

	hourStart  time.Time
	xpThisHour int

	lastChatAward time.Time
	recentPrompts []string // last 3 chat prompts, newest last
}

func newAwardLimiter(now func() time.Time) *awardLimiter {
	return &awardLimiter{now: now}
}

// gate applies the award protocol's rate-limiting step and returns the
// possibly reduced amount, or ok=false when the award is rejected outright.
func (al *awardLimiter) gate(source Source, amount int, prompt string) (int, bool) {
	now := al.now()
	al.rollHour(now)

	if al.xpThisHour >= hourlyXPCap {
		return 0, false
	}
	if amount > hourlyXPCap-al.xpThisHour {
		amount = hourlyXPCap - al.xpThisHour
	}

	if source.IsChat() {
		if !al.lastChatAward.IsZero() && now.Sub(al.lastChatAward) < chatCooldown {
			return 0, false
		}
		switch sim := al.maxSimilarity(prompt); {
		case sim > 0.8:
			amount /= 2
		case sim > 0.6:
			amount = int(float64(amount) * 0.75)
		}
	}

	if amount <= 0 {
		return 0, false
	}
	return amount, true
}

// record books an accepted award into the hourly window and chat history.
func (al *awardLimiter) record(source Source, amount int, prompt string) {
	now := al.now()
	al.rollHour(now)
	al.xpThisHour += amount

	if source.IsChat() {
		al.lastChatAward = now
		al.recentPrompts = append(al.recentPrompts, prompt)
		if len(al.recentPrompts) > 3 {
			al.recentPrompts = al.recentPrompts[len(al.recentPrompts)-3:]
		}
	}
}

func (al *awardLimiter) rollHour(now time.Time) {
	if al.hourStart.IsZero() || now.Sub(al.hourStart) >= time.Hour {
		al.hourStart = now
		al.xpThisHour = 0
	}
}

// maxSimilarity computes the maximum word-set Jaccard similarity between
// prompt and the recent chat prompts. Crude on purpose: deterministic and
// cheap beats clever here.
func (al *awardLimiter) maxSimilarity(prompt string) float64 {
	if prompt == "" {
		return 0
	}
	set := wordSet(prompt)
	var maxSim float64
	for _, prev := range al.recentPrompts {
		if sim := jaccard(set, wordSet(prev)); sim > maxSim {
			maxSim = sim
		}
	}
	return maxSim
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
