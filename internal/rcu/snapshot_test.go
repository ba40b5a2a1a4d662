package rcu

import (
	"sync"
	"testing"
)

type ruleTable struct {
	Version int
	Rules   map[string]int64
}

func TestReplaceReturnsPrevious(t *testing.T) {
	first := &ruleTable{Version: 1, Rules: map[string]int64{"view": 10}}
	snap := NewSnapshot(first)

	if got := snap.Load(); got.Version != 1 || got.Rules["view"] != 10 {
		t.Fatalf("unexpected initial value: %#v", got)
	}

	second := &ruleTable{Version: 2, Rules: map[string]int64{"view": 5}}
	if prev := snap.Replace(second); prev != first {
		t.Fatalf("Replace returned %#v, want first value", prev)
	}
	if got := snap.Load(); got.Version != 2 || got.Rules["view"] != 5 {
		t.Fatalf("unexpected replaced value: %#v", got)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	snap := NewSnapshot(&ruleTable{Rules: map[string]int64{}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if cur := snap.Load(); cur == nil || cur.Rules == nil {
					t.Error("observed incomplete snapshot")
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				old := snap.Load()
				next := make(map[string]int64, len(old.Rules)+1)
				for k, v := range old.Rules {
					next[k] = v
				}
				next[string(rune('a'+id))] = int64(j)
				snap.Replace(&ruleTable{Version: old.Version + 1, Rules: next})
			}
		}(i)
	}
	wg.Wait()

	if snap.Load().Version == 0 {
		t.Fatal("expected at least one replacement")
	}
}

func BenchmarkLoad(b *testing.B) {
	snap := NewSnapshot(&ruleTable{Rules: map[string]int64{"view": 10}})
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = snap.Load().Rules["view"]
		}
	})
}
