package handlers

import (
	"net/http"

	"mibagent/internal/notify"

	"github.com/gin-gonic/gin"
)

type EventHandlers struct {
	feed *notify.Feed
}

func NewEventHandlers(feed *notify.Feed) *EventHandlers {
	return &EventHandlers{feed: feed}
}

// APIEvents lists recent threshold crossings, newest first.
func (h *EventHandlers) APIEvents(c *gin.Context) {
	events := h.feed.Recent()
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
