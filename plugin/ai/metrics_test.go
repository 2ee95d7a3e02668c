package ai

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestProviderMetrics_RecordCall(t *testing.T) {
	m := &ProviderMetrics{}

	m.RecordCall(CallEmbedding, 10*time.Millisecond, nil)
	m.RecordCall(CallEmbedding, 30*time.Millisecond, errors.New("provider down"))
	m.RecordCall(CallGeneration, 100*time.Millisecond, nil)

	snap := m.Snapshot()

	emb := snap[CallEmbedding]
	if emb.Calls != 2 {
		t.Errorf("Expected 2 embedding calls, got %d", emb.Calls)
	}
	if emb.Failures != 1 {
		t.Errorf("Expected 1 embedding failure, got %d", emb.Failures)
	}
	if emb.TotalLatencyMs != 40 {
		t.Errorf("Expected 40ms total latency, got %d", emb.TotalLatencyMs)
	}
	if emb.AverageLatencyMs != 20 {
		t.Errorf("Expected 20ms average latency, got %d", emb.AverageLatencyMs)
	}

	gen := snap[CallGeneration]
	if gen.Calls != 1 || gen.Failures != 0 {
		t.Errorf("Expected 1 generation call with 0 failures, got %d/%d", gen.Calls, gen.Failures)
	}

	if rr := snap[CallRerank]; rr.Calls != 0 {
		t.Errorf("Expected 0 rerank calls, got %d", rr.Calls)
	}
}

func TestProviderMetrics_Reset(t *testing.T) {
	m := &ProviderMetrics{}
	m.RecordCall(CallRerank, time.Millisecond, nil)
	m.Reset()

	snap := m.Snapshot()
	for kind, s := range snap {
		if s.Calls != 0 || s.Failures != 0 || s.TotalLatencyMs != 0 {
			t.Errorf("Expected zeroed counters for %s after reset, got %+v", kind, s)
		}
	}
}

func TestProviderMetrics_Concurrent(t *testing.T) {
	m := &ProviderMetrics{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordCall(CallGeneration, time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot()[CallGeneration].Calls; got != 1000 {
		t.Errorf("Expected 1000 calls, got %d", got)
	}
}
