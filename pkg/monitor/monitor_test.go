package monitor

import (
	"errors"
	"fmt"
	"testing"
)

func TestExactLoop_BlocksOnThird(t *testing.T) {
	m := New(Config{})
	inv := Invocation{Tool: "search", Args: map[string]string{"query": "same thing"}}

	if err := m.Record(inv); err != nil {
		t.Fatalf("first call tripped: %v", err)
	}
	if err := m.Record(inv); err != nil {
		t.Fatalf("second call tripped: %v", err)
	}
	err := m.Record(inv)
	if err == nil {
		t.Fatal("third identical call did not trip")
	}
	var v *Violation
	if !errors.As(err, &v) || v.Kind != ViolationExactLoop {
		t.Fatalf("err = %v", err)
	}
	if !v.Veto {
		t.Error("exact loop must veto")
	}

	res := m.Result()
	if !res.ShouldBlock || res.Score < 0.9 {
		t.Errorf("result = %+v", res)
	}
}

func TestExactLoop_ArgOrderIndependent(t *testing.T) {
	m := New(Config{})

	// Same logical call; map iteration order must not matter.
	for i := 0; i < 2; i++ {
		err := m.Record(Invocation{Tool: "fetch", Args: map[string]string{"a": "1", "b": "2", "c": "3"}})
		if err != nil {
			t.Fatalf("call %d tripped: %v", i, err)
		}
	}
	if err := m.Record(Invocation{Tool: "fetch", Args: map[string]string{"c": "3", "a": "1", "b": "2"}}); err == nil {
		t.Fatal("reordered arguments escaped the exact-loop detector")
	}
}

func TestDistinctCalls_NoViolation(t *testing.T) {
	m := New(Config{})
	for i := 0; i < 20; i++ {
		err := m.Record(Invocation{Tool: "step", Args: map[string]string{fmt.Sprintf("field%d", i): "1"}})
		if err != nil {
			t.Fatalf("distinct call %d tripped: %v", i, err)
		}
	}
	if res := m.Result(); res.ShouldBlock || res.Score != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestCyclicPattern(t *testing.T) {
	m := New(Config{})
	a := Invocation{Tool: "read", Args: map[string]string{"path": "/a"}}
	b := Invocation{Tool: "write", Args: map[string]string{"path": "/b"}}

	if err := m.Record(a); err != nil {
		t.Fatal(err)
	}
	if err := m.Record(b); err != nil {
		t.Fatal(err)
	}
	if err := m.Record(a); err != nil {
		t.Fatal(err)
	}
	err := m.Record(b)
	if err == nil {
		t.Fatal("a,b,a,b cycle not detected")
	}
	var v *Violation
	if !errors.As(err, &v) || v.Kind != ViolationCyclic {
		t.Fatalf("err = %v", err)
	}
}

func TestSemanticLoop_SameShapeDifferentValues(t *testing.T) {
	m := New(Config{})

	// Identical key sets with rotating values: the loop signature the
	// exact-hash detector cannot see.
	queries := []string{"weather in paris", "capital of peru", "tallest mountain"}
	var err error
	for _, q := range queries {
		err = m.Record(Invocation{Tool: "search", Args: map[string]string{"query": q}})
	}
	if err == nil {
		t.Fatal("same-shape run with rotating values not detected")
	}
	var v *Violation
	if !errors.As(err, &v) || v.Kind != ViolationSemanticLoop {
		t.Fatalf("err = %v", err)
	}
	if !v.Veto {
		t.Error("semantic loop must veto")
	}

	res := m.Result()
	if !res.ShouldBlock {
		t.Error("semantic loop did not block the stage")
	}
	if res.Score < 0.8 {
		t.Errorf("score = %.2f", res.Score)
	}
}

func TestSemanticLoop_ToolChangeBreaksRun(t *testing.T) {
	m := New(Config{})

	calls := []Invocation{
		{Tool: "search", Args: map[string]string{"query": "a"}},
		{Tool: "search", Args: map[string]string{"query": "b"}},
		{Tool: "fetch", Args: map[string]string{"query": "c"}},
		{Tool: "search", Args: map[string]string{"query": "d"}},
	}
	for i, inv := range calls {
		if err := m.Record(inv); err != nil {
			t.Fatalf("call %d tripped: %v", i, err)
		}
	}
}

func TestCostBudget(t *testing.T) {
	m := New(Config{TokenBudget: 50})

	big := make([]byte, 400)
	for i := range big {
		big[i] = 'x'
	}
	err := m.Record(Invocation{Tool: "generate", Args: map[string]string{"prompt": string(big)}})
	if err == nil {
		t.Fatal("cost blowout not detected")
	}
	var v *Violation
	if !errors.As(err, &v) || v.Kind != ViolationCostBudget {
		t.Fatalf("err = %v", err)
	}
	if !v.Veto {
		t.Error("cost budget must veto")
	}
}

func TestWindowBound(t *testing.T) {
	m := New(Config{WindowSize: 5, ExactLoopN: 3})
	same := Invocation{Tool: "poll", Args: map[string]string{"id": "7"}}

	// Two hits, then enough distinct calls to push them out of the window.
	_ = m.Record(same)
	_ = m.Record(same)
	for i := 0; i < 5; i++ {
		if err := m.Record(Invocation{Tool: "other", Args: map[string]string{fmt.Sprintf("n%d", i): "x"}}); err != nil {
			t.Fatalf("filler %d tripped: %v", i, err)
		}
	}
	// A third hit now only sees itself in the window.
	if err := m.Record(same); err != nil {
		t.Fatalf("expired duplicates still counted: %v", err)
	}
	if m.Invocations() != 8 {
		t.Errorf("total = %d, want 8", m.Invocations())
	}
}

func TestViolationSticks(t *testing.T) {
	m := New(Config{})
	inv := Invocation{Tool: "spin", Args: nil}

	_ = m.Record(inv)
	_ = m.Record(inv)
	first := m.Record(inv)
	second := m.Record(Invocation{Tool: "unrelated", Args: nil})
	if first == nil || second == nil {
		t.Fatal("violation did not stick")
	}
	if first.Error() != second.Error() {
		t.Errorf("violation changed: %v vs %v", first, second)
	}
}
