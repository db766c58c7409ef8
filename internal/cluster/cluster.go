// Package cluster implements the position-based clustering helper used to
// collapse adjacent undercovered regions and adjacent variable loci into
// single report rows (spec §4.10), mirroring the original program's
// template Clusterer<T>.
package cluster

// Item is anything that can be clustered by genomic position.
type Item interface {
	Position() uint32
}

// Cluster groups consecutive members whose positions are all within Gap of
// their neighbor.
type Cluster[T Item] struct {
	Members []T
}

// Midpoint returns the average position of the first and last member, the
// same definition the original program uses for a cluster's representative
// position.
func (c Cluster[T]) Midpoint() uint32 {
	if len(c.Members) == 0 {
		return 0
	}
	first := c.Members[0].Position()
	last := c.Members[len(c.Members)-1].Position()
	return (first + last) / 2
}

// Clusterer groups a stream of fed items: consecutive items within gap
// positions of each other join the same cluster.
type Clusterer[T Item] struct {
	gap      uint32
	Clusters []Cluster[T]
}

// New returns a Clusterer joining items within gap positions of one another.
func New[T Item](gap uint32) *Clusterer[T] {
	return &Clusterer[T]{gap: gap}
}

// Feed adds one item, extending the last cluster if item is within gap of
// its last member, or starting a new cluster otherwise. Feed assumes items
// arrive in non-decreasing position order, matching the sorted loci/regions
// lists the pipeline builds before clustering.
func (c *Clusterer[T]) Feed(item T) {
	if n := len(c.Clusters); n > 0 {
		last := c.Clusters[n-1]
		lastPos := last.Members[len(last.Members)-1].Position()
		if item.Position()-lastPos <= c.gap {
			c.Clusters[n-1].Members = append(c.Clusters[n-1].Members, item)
			return
		}
	}
	c.Clusters = append(c.Clusters, Cluster[T]{Members: []T{item}})
}
