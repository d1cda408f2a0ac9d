// Package board derives the three status lanes from a cache snapshot.
// It holds no state of its own: every render starts from Partition.
package board

import "github.com/joescharf/teamboard/internal/models"

// Lane is one status column.
type Lane struct {
	Status models.Status
	Issues []models.Issue
}

// Label is the lane heading.
func (l Lane) Label() string { return l.Status.Label() }

// Board is the partition of a snapshot into lanes, in models.Statuses order.
type Board struct {
	Lanes [3]Lane
}

// Partition groups issues by status, keeping their relative order. Issues
// with a status outside the enumeration are not rendered.
func Partition(issues []models.Issue) Board {
	var b Board
	for i, s := range models.Statuses {
		b.Lanes[i].Status = s
	}
	for _, issue := range issues {
		idx := issue.Status.Index()
		if idx < 0 {
			continue
		}
		b.Lanes[idx].Issues = append(b.Lanes[idx].Issues, issue)
	}
	return b
}

// Lane returns the lane for s.
func (b Board) Lane(s models.Status) (Lane, bool) {
	idx := s.Index()
	if idx < 0 {
		return Lane{}, false
	}
	return b.Lanes[idx], true
}

// Locate finds the lane and row of issue id.
func (b Board) Locate(id models.ID) (Lane, int, bool) {
	for _, lane := range b.Lanes {
		for row, issue := range lane.Issues {
			if issue.ID == id {
				return lane, row, true
			}
		}
	}
	return Lane{}, 0, false
}

// Total counts rendered issues.
func (b Board) Total() int {
	n := 0
	for _, lane := range b.Lanes {
		n += len(lane.Issues)
	}
	return n
}

// Counts returns the number of issues per lane.
func (b Board) Counts() map[models.Status]int {
	out := make(map[models.Status]int, len(b.Lanes))
	for _, lane := range b.Lanes {
		out[lane.Status] = len(lane.Issues)
	}
	return out
}
