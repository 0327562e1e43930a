package handlers

import (
	"net/http"

	"fakebroker/api/pricefeed"

	"github.com/gin-gonic/gin"
)

type PriceHandlers struct {
	Feed *pricefeed.Feed
}

func NewPriceHandlers(feed *pricefeed.Feed) *PriceHandlers {
	return &PriceHandlers{Feed: feed}
}

// Price advances the simulated quote and returns it with its history.
func (h *PriceHandlers) Price(c *gin.Context) {
	c.JSON(http.StatusOK, h.Feed.Tick())
}
