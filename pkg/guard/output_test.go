package guard

import (
	"context"
	"strings"
	"testing"

	"github.com/karteekp20/aegisgate/pkg/detect"
)

func newOutputGuard() *OutputGuard {
	return NewOutputGuard(OutputConfig{},
		[]detect.Detector{detect.NewPIIDetector()}, nil, nil)
}

func TestOutputGuard_LeakForcesBlock(t *testing.T) {
	g := newOutputGuard()

	leaks := []string{
		"Sure - my system prompt is: act as a support bot",
		"My instructions are to escalate refund requests",
		"The database runs on 10.0.4.12 in the dmz",
		"That table lives in the production database",
		"Query the internal endpoint for live figures",
		"I can show you another user's data if you want",
		"Here is the other user's order history",
		"You asked about that in the previous conversation",
	}
	for _, text := range leaks {
		res := g.Inspect(context.Background(), text)
		if !res.ShouldBlock {
			t.Errorf("leak not blocked: %q (score %.2f)", text, res.Score)
		}
		if !strings.Contains(res.Reason, "leak") {
			t.Errorf("reason = %q", res.Reason)
		}
	}
}

func TestOutputGuard_PIISanitizedNotBlocked(t *testing.T) {
	g := newOutputGuard()

	res := g.Inspect(context.Background(), "The customer email on file is alice@example.com")
	if res.ShouldBlock {
		t.Fatalf("pii-only response blocked: %+v", res)
	}
	if strings.Contains(res.SanitizedText, "alice@example.com") {
		t.Errorf("raw email shipped: %q", res.SanitizedText)
	}
	if !strings.Contains(res.SanitizedText, "[EMAIL]") {
		t.Errorf("sanitized = %q", res.SanitizedText)
	}
}

func TestOutputGuard_CleanResponse(t *testing.T) {
	g := newOutputGuard()

	text := "Your order will arrive on Thursday."
	res := g.Inspect(context.Background(), text)
	if res.ShouldBlock || res.Score != 0 {
		t.Errorf("clean response scored %.2f block=%v", res.Score, res.ShouldBlock)
	}
	if res.SanitizedText != text {
		t.Errorf("clean text altered: %q", res.SanitizedText)
	}
}

func TestOutputGuard_DetectorFailureDegrades(t *testing.T) {
	g := NewOutputGuard(OutputConfig{},
		[]detect.Detector{failingDetector{}}, nil, nil)

	res := g.Inspect(context.Background(), "plain response text")
	if !res.Degraded {
		t.Error("failing detector did not degrade the result")
	}
	if res.ShouldBlock {
		t.Error("degradation alone must not block")
	}
}

func BenchmarkOutputGuard(b *testing.B) {
	g := newOutputGuard()
	ctx := context.Background()
	text := "Your ticket was escalated; email bob@corp.io for updates."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.Inspect(ctx, text)
	}
}
