package board

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/teamboard/internal/models"
)

func mk(id string, status models.Status) models.Issue {
	return models.Issue{ID: models.ID(id), Fields: models.Fields{Title: "t" + id, Status: status}}
}

func TestPartition_FixedLaneOrder(t *testing.T) {
	b := Partition(nil)
	assert.Equal(t, models.StatusOpen, b.Lanes[0].Status)
	assert.Equal(t, models.StatusInProgress, b.Lanes[1].Status)
	assert.Equal(t, models.StatusClosed, b.Lanes[2].Status)
	assert.Equal(t, "In Progress", b.Lanes[1].Label())
	assert.Equal(t, 0, b.Total())
}

func TestPartition_KeepsCacheOrder(t *testing.T) {
	b := Partition([]models.Issue{
		mk("3", models.StatusOpen),
		mk("1", models.StatusClosed),
		mk("2", models.StatusOpen),
	})

	open, ok := b.Lane(models.StatusOpen)
	require.True(t, ok)
	require.Len(t, open.Issues, 2)
	assert.Equal(t, models.ID("3"), open.Issues[0].ID)
	assert.Equal(t, models.ID("2"), open.Issues[1].ID)

	counts := b.Counts()
	assert.Equal(t, 2, counts[models.StatusOpen])
	assert.Equal(t, 0, counts[models.StatusInProgress])
	assert.Equal(t, 1, counts[models.StatusClosed])
}

func TestPartition_TotalAndExclusive(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for round := 0; round < 50; round++ {
		n := r.Intn(30)
		issues := make([]models.Issue, n)
		for i := range issues {
			issues[i] = mk(fmt.Sprintf("%d", i), models.Statuses[r.Intn(len(models.Statuses))])
		}

		b := Partition(issues)
		assert.Equal(t, n, b.Total())

		seen := map[models.ID]int{}
		for _, lane := range b.Lanes {
			for _, issue := range lane.Issues {
				seen[issue.ID]++
				assert.Equal(t, lane.Status, issue.Status, "issue in lane matching its status")
			}
		}
		for _, issue := range issues {
			assert.Equal(t, 1, seen[issue.ID], "issue %s appears exactly once", issue.ID)
		}
	}
}

func TestPartition_SkipsUnknownStatus(t *testing.T) {
	b := Partition([]models.Issue{mk("1", "DONE"), mk("2", models.StatusClosed)})
	assert.Equal(t, 1, b.Total())
	_, _, ok := b.Locate("1")
	assert.False(t, ok)
}

func TestLocate(t *testing.T) {
	b := Partition([]models.Issue{
		mk("1", models.StatusOpen),
		mk("2", models.StatusInProgress),
		mk("3", models.StatusInProgress),
	})

	lane, row, ok := b.Locate("3")
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, lane.Status)
	assert.Equal(t, 1, row)

	_, ok = b.Lane("DONE")
	assert.False(t, ok)
}

func TestScenario_MoveThenRefresh(t *testing.T) {
	before := Partition([]models.Issue{
		{ID: "1", Fields: models.Fields{Title: "A", Status: models.StatusOpen}},
		{ID: "2", Fields: models.Fields{Title: "B", Status: models.StatusClosed}},
	})
	lane, _, _ := before.Locate("1")
	assert.Equal(t, "Open", lane.Label())

	after := Partition([]models.Issue{
		{ID: "1", Fields: models.Fields{Title: "A", Status: models.StatusInProgress}},
		{ID: "2", Fields: models.Fields{Title: "B", Status: models.StatusClosed}},
	})
	lane, _, _ = after.Locate("1")
	assert.Equal(t, "In Progress", lane.Label())
	lane, _, _ = after.Locate("2")
	assert.Equal(t, "Closed", lane.Label())
}
