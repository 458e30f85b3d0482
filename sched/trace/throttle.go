package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/sirupsen/logrus"
)

// DefaultWarningRates bounds repetitive warnings to 5 per second and 30 per
// minute for each category.
var DefaultWarningRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 30,
}

// Throttle rate-limits repetitive warnings per category. Suppressed warnings
// are counted and reported alongside the next one that gets through.
// A nil *Throttle logs everything. Safe for concurrent use.
type Throttle struct {
	limiter *catrate.Limiter

	mu         sync.Mutex
	suppressed map[string]int
}

// NewThrottle creates a Throttle. Panics if rates are invalid (see catrate.NewLimiter).
func NewThrottle(rates map[time.Duration]int) *Throttle {
	return &Throttle{
		limiter:    catrate.NewLimiter(rates),
		suppressed: make(map[string]int),
	}
}

// Warnf logs a warning for category unless the category is over its rate.
// Returns true if the warning was logged.
func (t *Throttle) Warnf(category string, format string, args ...any) bool {
	if t == nil {
		logrus.Warnf(format, args...)
		return true
	}
	t.mu.Lock()
	if _, ok := t.limiter.Allow(category); !ok {
		t.suppressed[category]++
		t.mu.Unlock()
		return false
	}
	n := t.suppressed[category]
	delete(t.suppressed, category)
	t.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if n > 0 {
		logrus.WithField("suppressed", n).Warn(msg)
		return true
	}
	logrus.Warn(msg)
	return true
}

// Suppressed returns the number of warnings currently held back for category.
func (t *Throttle) Suppressed(category string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed[category]
}
