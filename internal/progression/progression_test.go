package progression

import (
	"testing"
	"time"
)

func newTestTracker() (*Tracker, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t := NewTracker()
	t.SetClock(func() time.Time { return now })
	return t, &now
}

func TestXPCurve(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{1, 0},
		{2, 348},  // floor(100 * 2^1.8)
		{3, 722},  // floor(100 * 3^1.8)
		{25, 32831},
	}
	for _, tt := range tests {
		if got := XPForLevel(tt.level); got != tt.want {
			t.Errorf("XPForLevel(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestLevelForXP_InvariantAcrossCurve(t *testing.T) {
	for k := 1; k <= MaxLevel; k++ {
		threshold := XPForLevel(k)
		if got := LevelForXP(threshold); got != k {
			t.Errorf("LevelForXP(%d) = %d, want %d", threshold, got, k)
		}
		if k > 1 {
			if got := LevelForXP(threshold - 1); got != k-1 {
				t.Errorf("LevelForXP(%d) = %d, want %d", threshold-1, got, k-1)
			}
		}
	}
	if got := LevelForXP(10_000_000); got != MaxLevel {
		t.Errorf("LevelForXP(huge) = %d, want %d", got, MaxLevel)
	}
}

func TestAwardXP_LevelDerivedFromTotal(t *testing.T) {
	tr, now := newTestTracker()

	awarded, amount := tr.AwardXP(SourceTaskComplete, 40, "")
	if !awarded || amount != 40 {
		t.Fatalf("AwardXP = (%v, %d), want (true, 40)", awarded, amount)
	}
	if tr.Level() != LevelForXP(tr.XP()) {
		t.Errorf("level %d != L(xp) %d", tr.Level(), LevelForXP(tr.XP()))
	}

	// Push over the level-2 threshold across hourly windows.
	for i := 0; i < 9; i++ {
		*now = now.Add(time.Hour + time.Second)
		tr.AwardXP(SourceTaskComplete, 40, "")
	}
	if tr.Level() != LevelForXP(tr.XP()) {
		t.Errorf("level %d != L(xp) %d after awards", tr.Level(), LevelForXP(tr.XP()))
	}
	if tr.Level() < 2 {
		t.Errorf("level = %d, want >= 2 at %d xp", tr.Level(), tr.XP())
	}
}

func TestAwardXP_HourlyCapClampsAndRejects(t *testing.T) {
	tr, _ := newTestTracker()

	_, got := tr.AwardXP(SourceTaskComplete, 80, "")
	if got != 80 {
		t.Fatalf("first award = %d, want 80", got)
	}

	// 80 already this hour: a 40 award clamps to 20.
	_, got = tr.AwardXP(SourceTaskComplete, 40, "")
	if got != 20 {
		t.Fatalf("clamped award = %d, want 20", got)
	}

	// Cap reached: reject.
	awarded, got := tr.AwardXP(SourceTaskComplete, 10, "")
	if awarded || got != 0 {
		t.Fatalf("award past cap = (%v, %d), want (false, 0)", awarded, got)
	}
}

func TestAwardXP_HourlyWindowRolls(t *testing.T) {
	tr, now := newTestTracker()
	tr.AwardXP(SourceTaskComplete, 100, "")

	*now = now.Add(61 * time.Minute)
	awarded, got := tr.AwardXP(SourceTaskComplete, 50, "")
	if !awarded || got != 50 {
		t.Fatalf("award after window = (%v, %d), want (true, 50)", awarded, got)
	}
}

func TestAwardXP_ChatCooldown(t *testing.T) {
	tr, now := newTestTracker()

	if awarded, _ := tr.AwardXP(SourceQuickChat, 5, "hello there"); !awarded {
		t.Fatal("first chat award rejected")
	}

	*now = now.Add(2 * time.Second)
	awarded, got := tr.AwardXP(SourceQuickChat, 5, "something else entirely")
	if awarded || got != 0 {
		t.Fatalf("chat award within 5s = (%v, %d), want (false, 0)", awarded, got)
	}

	// The cooldown is shared across chat sources but not task sources.
	if awarded, _ := tr.AwardXP(SourceTaskComplete, 10, ""); !awarded {
		t.Error("non-chat source should bypass the chat cooldown")
	}

	*now = now.Add(4 * time.Second)
	if awarded, _ := tr.AwardXP(SourceQuickChat, 5, "completely different words"); !awarded {
		t.Error("chat award after cooldown rejected")
	}
}

func TestAwardXP_SimilarPromptPenalty(t *testing.T) {
	tr, now := newTestTracker()

	tr.AwardXP(SourceQuickChat, 20, "tell me a fun fact about otters")

	*now = now.Add(6 * time.Second)
	_, got := tr.AwardXP(SourceQuickChat, 20, "tell me a fun fact about otters")
	if got != 10 {
		t.Errorf("identical prompt award = %d, want 10 (halved)", got)
	}

	*now = now.Add(6 * time.Second)
	_, got = tr.AwardXP(SourceQuickChat, 20, "what is the tallest mountain on earth today")
	if got != 20 {
		t.Errorf("fresh prompt award = %d, want 20", got)
	}
}

func TestPrestige_FullScenario(t *testing.T) {
	tr, _ := newTestTracker()
	if tr.CanPrestige() {
		t.Fatal("fresh tracker should not prestige")
	}

	// Grant enough XP to reach level 25 outside the limiter.
	tr.add(SourceSystem, XPForLevel(MaxLevel))
	if tr.Level() != MaxLevel {
		t.Fatalf("level = %d, want %d", tr.Level(), MaxLevel)
	}
	if !tr.Achievements()[AchievementLegendary].Unlocked {
		t.Error("legendary should unlock at max level")
	}

	if err := tr.DoPrestige(); err != nil {
		t.Fatalf("DoPrestige failed: %v", err)
	}
	if tr.Level() != 1 || tr.XP() != 0 || tr.Prestige() != 1 {
		t.Fatalf("after prestige: level=%d xp=%d prestige=%d", tr.Level(), tr.XP(), tr.Prestige())
	}
	if got := tr.Badges(); len(got) != 1 || got[0] != "prestige_1" {
		t.Fatalf("badges = %v, want [prestige_1]", got)
	}
	if !tr.Achievements()[AchievementLegendary].Unlocked {
		t.Error("achievements must survive prestige")
	}

	// Future XP is multiplied by 1 + prestige.
	_, got := tr.AwardXP(SourceQuickChat, 5, "hello again friend")
	if got != 10 {
		t.Errorf("post-prestige award = %d, want 10", got)
	}
}

func TestStreak(t *testing.T) {
	tr, _ := newTestTracker()

	if first := tr.RecordInteractionDay("2026-03-01"); !first {
		t.Error("first interaction of day should report true")
	}
	if tr.RecordInteractionDay("2026-03-01") {
		t.Error("second interaction same day should report false")
	}
	tr.RecordInteractionDay("2026-03-02")
	if tr.CurrentStreak() != 2 {
		t.Errorf("streak = %d, want 2", tr.CurrentStreak())
	}

	// A gap resets to 1.
	tr.RecordInteractionDay("2026-03-05")
	if tr.CurrentStreak() != 1 {
		t.Errorf("streak after gap = %d, want 1", tr.CurrentStreak())
	}

	for d := 6; d <= 11; d++ {
		tr.RecordInteractionDay(time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02"))
	}
	if tr.CurrentStreak() != 7 {
		t.Fatalf("streak = %d, want 7", tr.CurrentStreak())
	}
	if a := tr.Achievements()[AchievementStreak7]; a == nil || !a.Unlocked {
		t.Error("streak_7 should unlock at 7 days")
	}
}

func TestChatQuality(t *testing.T) {
	tests := []struct {
		name       string
		msgLen     int
		turns      int
		isQuestion bool
		wantSource Source
		wantXP     int
	}{
		{"short greeting", 5, 1, false, SourceGreeting, 2},
		{"short question", 15, 1, true, SourceQuickChat, 5},
		{"deep conversation", 80, 4, false, SourceDeepChat, 15},
		{"long but first turn", 80, 1, false, SourceQuickChat, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, xp := ChatQuality(tt.msgLen, tt.turns, tt.isQuestion, 0)
			if source != tt.wantSource || xp != tt.wantXP {
				t.Errorf("ChatQuality = (%s, %d), want (%s, %d)", source, xp, tt.wantSource, tt.wantXP)
			}
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	tr, _ := newTestTracker()
	tr.add(SourceSystem, 1000)
	tr.RecordInteractionDay("2026-03-01")
	tr.Unlock(AchievementStreak7)

	restored := NewTracker()
	restored.Restore(tr.Snapshot())

	if restored.XP() != tr.XP() || restored.Level() != tr.Level() {
		t.Errorf("xp/level = %d/%d, want %d/%d", restored.XP(), restored.Level(), tr.XP(), tr.Level())
	}
	if restored.CurrentStreak() != tr.CurrentStreak() {
		t.Errorf("streak = %d, want %d", restored.CurrentStreak(), tr.CurrentStreak())
	}
	if a := restored.Achievements()[AchievementStreak7]; a == nil || !a.Unlocked {
		t.Error("achievement lost in round trip")
	}
	if len(restored.History()) != len(tr.History()) {
		t.Errorf("history length = %d, want %d", len(restored.History()), len(tr.History()))
	}
}

func TestHistoryBounded(t *testing.T) {
	tr, _ := newTestTracker()
	for i := 0; i < historyCap+20; i++ {
		tr.add(SourceSystem, 1)
	}
	if got := len(tr.History()); got != historyCap {
		t.Errorf("history length = %d, want %d", got, historyCap)
	}
}
