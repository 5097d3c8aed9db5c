package display

import (
	"log/slog"
	"sync"
	"time"
)

// Sink is the abstract e-ink surface the companion draws on. The concrete
// driver lives outside this module; the heartbeat and front-ends only talk
// through this interface.
type Sink interface {
	// Update redraws the face and optional text. force skips the
	// driver's damage tracking.
	Update(face, text, moodText, status string, force bool)

	// ShowMessagePaginated splits long text into screens and returns the
	// number of pages shown.
	ShowMessagePaginated(text, face string, pageDelay time.Duration, loop bool) int

	SetMode(mode string)
	IncrementChatCount()

	ShouldActivateScreensaver() bool
	StartScreensaver()
	StopScreensaver()
	ScreensaverActive() bool
}

// pageSize approximates what one e-ink screen holds.
const pageSize = 200

// LogSink is the headless sink: it records display traffic to the log and
// feeds an optional event callback. Used whenever no hardware driver is
// attached (tests, servers, development).
type LogSink struct {
	mu          sync.Mutex
	mode        string
	chatCount   int
	screensaver bool
	lastTouch   time.Time
	idleAfter   time.Duration
	now         func() time.Time

	// OnEvent, when set, receives every visible update.
	OnEvent func(kind, face, text string)
}

// NewLogSink creates a LogSink that suggests a screensaver after idleAfter
// without updates.
func NewLogSink(idleAfter time.Duration) *LogSink {
	return &LogSink{
		mode:      "normal",
		idleAfter: idleAfter,
		now:       time.Now,
		lastTouch: time.Now(),
	}
}

func (s *LogSink) emit(kind, face, text string) {
	if s.OnEvent != nil {
		s.OnEvent(kind, face, text)
	}
}

func (s *LogSink) Update(face, text, moodText, status string, force bool) {
	s.mu.Lock()
	s.lastTouch = s.now()
	s.mu.Unlock()
	slog.Debug("display.update", "face", face, "text", text, "mood", moodText, "status", status)
	s.emit("update", face, text)
}

func (s *LogSink) ShowMessagePaginated(text, face string, pageDelay time.Duration, loop bool) int {
	s.mu.Lock()
	s.lastTouch = s.now()
	s.mu.Unlock()

	pages := (len(text) + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	slog.Debug("display.message", "face", face, "pages", pages)
	s.emit("message", face, text)
	return pages
}

func (s *LogSink) SetMode(mode string) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

func (s *LogSink) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *LogSink) IncrementChatCount() {
	s.mu.Lock()
	s.chatCount++
	s.mu.Unlock()
}

func (s *LogSink) ChatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatCount
}

func (s *LogSink) ShouldActivateScreensaver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screensaver || s.idleAfter <= 0 {
		return false
	}
	return s.now().Sub(s.lastTouch) >= s.idleAfter
}

func (s *LogSink) StartScreensaver() {
	s.mu.Lock()
	s.screensaver = true
	s.mu.Unlock()
	s.emit("screensaver", "", "on")
}

func (s *LogSink) StopScreensaver() {
	s.mu.Lock()
	s.screensaver = false
	s.lastTouch = s.now()
	s.mu.Unlock()
	s.emit("screensaver", "", "off")
}

func (s *LogSink) ScreensaverActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screensaver
}
