package chat

import (
	"time"

	"github.com/Vasu1712/chatwise-backend/internal/models"
)

const (
	// DayLayout renders the date separator.
	DayLayout = "January 2, 2006"
	// TimeLayout renders the time next to each message.
	TimeLayout = "03:04 PM"
)

// Item is one rendered transcript row.
type Item struct {
	Message models.Message `json:"message"`
	// NewDay is set when a date separator precedes this message.
	NewDay bool   `json:"newDay"`
	Day    string `json:"day"`
	Time   string `json:"time"`
	Mine   bool   `json:"mine"`
}

// GroupByDay folds an ordered message list into transcript rows. A
// separator precedes the first row and every row whose rendered day
// differs from the previous row's. Messages without a timestamp render an
// empty day and time.
func GroupByDay(msgs []models.Message, viewer string, loc *time.Location) []Item {
	if loc == nil {
		loc = time.UTC
	}
	items := make([]Item, 0, len(msgs))
	for _, m := range msgs {
		var day, clock string
		if !m.CreatedAt.IsZero() {
			local := m.CreatedAt.In(loc)
			day = local.Format(DayLayout)
			clock = local.Format(TimeLayout)
		}
		items = append(items, Item{
			Message: m,
			NewDay:  len(items) == 0 || items[len(items)-1].Day != day,
			Day:     day,
			Time:    clock,
			Mine:    m.Sender == viewer,
		})
	}
	return items
}
