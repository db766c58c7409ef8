package dedup

import "testing"

func TestSeenIncrementsPerSequence(t *testing.T) {
	c := New(16)
	seq := []byte("ACGTACGT")

	if got := c.Seen(seq); got != 1 {
		t.Errorf("Seen() first call = %d, want 1", got)
	}
	if got := c.Seen(seq); got != 2 {
		t.Errorf("Seen() second call = %d, want 2", got)
	}
	if got := c.Seen([]byte("TTTTTTTT")); got != 1 {
		t.Errorf("Seen() on a distinct sequence = %d, want 1", got)
	}
}

func TestHashIsDeterministic(t *testing.T) {
	seq := []byte("GATTACA")
	if Hash(seq) != Hash(append([]byte(nil), seq...)) {
		t.Error("Hash() should be deterministic for equal byte slices")
	}
}

func TestCountsHistogram(t *testing.T) {
	c := New(16)
	c.FeedString([]byte("AAAA"))
	c.FeedString([]byte("AAAA"))
	c.FeedString([]byte("CCCC"))

	counts := c.Counts()
	if counts[2] != 1 {
		t.Errorf("Counts()[2] = %d, want 1 (one sequence repeated twice)", counts[2])
	}
	if counts[1] != 1 {
		t.Errorf("Counts()[1] = %d, want 1 (one sequence seen once)", counts[1])
	}
}

func TestCountsCapsAtRepeatCap(t *testing.T) {
	c := New(32)
	for i := 0; i < repeatCap+5; i++ {
		c.FeedString([]byte("GGGG"))
	}
	counts := c.Counts()
	if counts[repeatCap] != 1 {
		t.Errorf("Counts()[%d] = %d, want 1 (capped)", repeatCap, counts[repeatCap])
	}
	if _, ok := counts[uint64(repeatCap+5)]; ok {
		t.Error("Counts() should not contain an uncapped repeat count")
	}
}

func TestCountsEmpty(t *testing.T) {
	c := New(16)
	if counts := c.Counts(); len(counts) != 0 {
		t.Errorf("Counts() on empty counter = %v, want empty map", counts)
	}
}

func TestClearReleasesBuffer(t *testing.T) {
	c := New(16)
	c.FeedString([]byte("AAAA"))
	c.Clear()
	if counts := c.Counts(); len(counts) != 0 {
		t.Errorf("Counts() after Clear() = %v, want empty map", counts)
	}
}
