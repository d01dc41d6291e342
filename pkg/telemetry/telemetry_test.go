package telemetry

import (
	"sync"
	"testing"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		if _, err := NewLogger(level); err != nil {
			t.Errorf("level %q: %v", level, err)
		}
	}
	if _, err := NewLogger("shout"); err == nil {
		t.Error("bad level accepted")
	}
}

func TestCounters(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Evaluated()
			c.Blocked()
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap["evaluated"] != 50 || snap["blocked"] != 50 {
		t.Errorf("snapshot = %v", snap)
	}
	if snap["degraded"] != 0 || snap["escalated"] != 0 {
		t.Errorf("untouched counters moved: %v", snap)
	}
}
