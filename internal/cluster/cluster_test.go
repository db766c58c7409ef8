package cluster

import "testing"

type point struct {
	pos uint32
}

func (p point) Position() uint32 { return p.pos }

func TestFeedGroupsWithinGap(t *testing.T) {
	c := New[point](5)
	for _, pos := range []uint32{10, 12, 14, 50, 52, 100} {
		c.Feed(point{pos})
	}

	if len(c.Clusters) != 3 {
		t.Fatalf("got %d clusters, want 3: %+v", len(c.Clusters), c.Clusters)
	}
	if len(c.Clusters[0].Members) != 3 {
		t.Errorf("first cluster has %d members, want 3", len(c.Clusters[0].Members))
	}
	if len(c.Clusters[1].Members) != 2 {
		t.Errorf("second cluster has %d members, want 2", len(c.Clusters[1].Members))
	}
	if len(c.Clusters[2].Members) != 1 {
		t.Errorf("third cluster has %d members, want 1", len(c.Clusters[2].Members))
	}
}

func TestMidpointIsAverageOfFirstAndLast(t *testing.T) {
	c := New[point](6)
	c.Feed(point{10})
	c.Feed(point{14})
	c.Feed(point{20})

	if got, want := c.Clusters[0].Midpoint(), uint32(15); got != want {
		t.Errorf("Midpoint() = %d, want %d", got, want)
	}
}

func TestMidpointEmptyCluster(t *testing.T) {
	var c Cluster[point]
	if got := c.Midpoint(); got != 0 {
		t.Errorf("Midpoint() of empty cluster = %d, want 0", got)
	}
}

func TestFeedSingleItem(t *testing.T) {
	c := New[point](5)
	c.Feed(point{1})
	if len(c.Clusters) != 1 || len(c.Clusters[0].Members) != 1 {
		t.Errorf("Clusters = %+v, want one cluster with one member", c.Clusters)
	}
}
