package cache

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type evictLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *evictLog) record(k string, _ int) {
	l.mu.Lock()
	l.keys = append(l.keys, k)
	l.mu.Unlock()
}

func TestNew(t *testing.T) {
	c := New[string, int](0, nil)
	if got := c.Stats().Capacity; got != 1 {
		t.Errorf("New(0) capacity = %d, want 1", got)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestGetAdd(t *testing.T) {
	c := New[string, int](4, nil)
	c.Add("a", 1)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v, want 1, true", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) found a missing key")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	var log evictLog
	c := New[string, int](2, log.record)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Get("a") // b is now oldest
	c.Add("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if diff := cmp.Diff([]string{"b"}, log.keys); diff != "" {
		t.Errorf("evicted keys (-want +got):\n%s", diff)
	}
}

func TestAddReplaceEvictsOldValue(t *testing.T) {
	var got []int
	c := New[string, int](2, func(_ string, v int) { got = append(got, v) })
	c.Add("a", 1)
	c.Add("a", 2)

	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) = %d, want 2", v)
	}
	if diff := cmp.Diff([]int{1}, got); diff != "" {
		t.Errorf("evicted values (-want +got):\n%s", diff)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestGetOrCreate(t *testing.T) {
	c := New[string, int](4, nil)
	calls := 0
	create := func() (int, error) {
		calls++
		return 7, nil
	}

	v, hit, err := c.GetOrCreate("k", create)
	if v != 7 || hit || err != nil {
		t.Errorf("GetOrCreate() = %d, %v, %v, want 7, false, nil", v, hit, err)
	}
	v, hit, err = c.GetOrCreate("k", create)
	if v != 7 || !hit || err != nil {
		t.Errorf("GetOrCreate() second = %d, %v, %v, want 7, true, nil", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestGetOrCreateError(t *testing.T) {
	c := New[string, int](4, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCreate("k", func() (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Errorf("GetOrCreate() error = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after failed create, want 0", c.Len())
	}
}

func TestRemovePurge(t *testing.T) {
	var log evictLog
	c := New[string, int](8, log.record)
	for i := range 4 {
		c.Add(strconv.Itoa(i), i)
	}

	if !c.Remove("1") {
		t.Error("Remove(1) = false, want true")
	}
	if c.Remove("1") {
		t.Error("Remove(1) twice = true, want false")
	}
	c.Purge()

	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", c.Len())
	}
	if diff := cmp.Diff([]string{"1", "0", "2", "3"}, log.keys); diff != "" {
		t.Errorf("evicted keys (-want +got):\n%s", diff)
	}
	if got := c.Stats().Evictions; got != 4 {
		t.Errorf("Stats().Evictions = %d, want 4", got)
	}
}

func TestStats(t *testing.T) {
	c := New[int, int](4, nil)
	c.Add(1, 1)
	c.Get(1)
	c.Get(2)
	s := c.Stats()
	want := Stats{Len: 1, Capacity: 4, Hits: 1, Misses: 1, HitRate: 0.5}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Stats() (-want +got):\n%s", diff)
	}
}

func TestConcurrentAccess(t *testing.T) {
	var log evictLog
	c := New[string, int](16, log.record)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := strconv.Itoa((g*7 + i) % 40)
				if i%3 == 0 {
					c.Add(key, i)
				} else {
					_, _, _ = c.GetOrCreate(key, func() (int, error) { return i, nil })
				}
			}
		}()
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("Len() = %d, exceeds capacity 16", c.Len())
	}
}
