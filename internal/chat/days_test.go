package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/chatwise-backend/internal/models"
)

func separators(items []Item) []bool {
	out := make([]bool, len(items))
	for i, it := range items {
		out[i] = it.NewDay
	}
	return out
}

func TestGroupByDaySeparatorsFollowRenderedDay(t *testing.T) {
	msgs := []models.Message{
		{ID: "1", Sender: "a@x.com", CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "2", Sender: "b@x.com", CreatedAt: time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)},
		{ID: "3", Sender: "a@x.com", CreatedAt: time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC)},
	}

	items := GroupByDay(msgs, "a@x.com", time.UTC)
	require.Equal(t, []bool{true, false, true}, separators(items))
	require.Equal(t, "March 1, 2025", items[0].Day)
	require.Equal(t, "March 2, 2025", items[2].Day)
	require.Equal(t, "10:00 AM", items[0].Time)
	require.Equal(t, "11:59 PM", items[1].Time)
	require.True(t, items[0].Mine)
	require.False(t, items[1].Mine)
}

func TestGroupByDayUsesViewerTimezone(t *testing.T) {
	// 23:59 and 00:01 UTC fall on the same local day two hours ahead.
	msgs := []models.Message{
		{ID: "1", CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "2", CreatedAt: time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)},
		{ID: "3", CreatedAt: time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC)},
	}
	plusTwo := time.FixedZone("UTC+2", 2*60*60)

	items := GroupByDay(msgs, "", plusTwo)
	require.Equal(t, []bool{true, true, false}, separators(items))
	require.Equal(t, "March 2, 2025", items[1].Day)
}

func TestGroupByDayPendingTimestamps(t *testing.T) {
	msgs := []models.Message{
		{ID: "1"},
		{ID: "2"},
		{ID: "3", CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	items := GroupByDay(msgs, "", nil)
	require.Equal(t, []bool{true, false, true}, separators(items))
	require.Empty(t, items[0].Day)
	require.Empty(t, items[0].Time)
}

func TestGroupByDayEmpty(t *testing.T) {
	require.Empty(t, GroupByDay(nil, "a@x.com", time.UTC))
}
