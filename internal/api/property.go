package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/property"
	"github.com/gin-gonic/gin"
)

type searchQuery struct {
	Location      string  `form:"location" binding:"omitempty,max=100"`
	PropertyType  string  `form:"propertyType" binding:"omitempty,max=50"`
	MinPrice      float64 `form:"minPrice" binding:"omitempty,min=0"`
	MaxPrice      float64 `form:"maxPrice" binding:"required,gt=0"`
	MinBedrooms   int     `form:"minBedrooms" binding:"omitempty,min=0,max=20"`
	MinBathrooms  float64 `form:"minBathrooms" binding:"omitempty,min=0,max=20"`
	MinSquareFeet int     `form:"minSquareFeet" binding:"omitempty,min=0"`
	MaxSquareFeet int     `form:"maxSquareFeet" binding:"omitempty,min=0"`
	Limit         int     `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset        int     `form:"offset" binding:"omitempty,min=0"`
}

func (h *Handler) SearchProperties(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, apperr.Validation("invalid search parameters", err.Error()))
		return
	}

	res, err := h.properties.SearchProperties(c.Request.Context(), property.SearchCriteria(q))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{
		"properties": res.Properties,
		"count":      res.Count,
		"criteria":   res.Criteria,
		"timestamp":  res.Timestamp,
	})
}

type marketQuery struct {
	Location     string `form:"location" binding:"required,max=100"`
	PropertyType string `form:"propertyType" binding:"required,max=50"`
}

func (h *Handler) MarketAnalysis(c *gin.Context) {
	var q marketQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, apperr.Validation("invalid market analysis parameters", err.Error()))
		return
	}

	ma, err := h.properties.GetMarketAnalysis(c.Request.Context(), q.Location, q.PropertyType)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"analysis": ma})
}

type showingRequest struct {
	ClientName    string `json:"clientName" binding:"required,max=200"`
	ClientEmail   string `json:"clientEmail" binding:"required,email"`
	ClientPhone   string `json:"clientPhone" binding:"omitempty,max=32"`
	PreferredDate string `json:"preferredDate" binding:"required"`
	TimeSlot      string `json:"timeSlot" binding:"required,max=50"`
	Notes         string `json:"notes" binding:"omitempty,max=1000"`
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func (h *Handler) ScheduleShowing(c *gin.Context) {
	var req showingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindingError(err))
		return
	}
	date, err := parseDate(req.PreferredDate)
	if err != nil {
		h.fail(c, apperr.Validation("invalid preferredDate", "preferredDate must be YYYY-MM-DD or RFC 3339"))
		return
	}

	showing, err := h.properties.ScheduleShowing(c.Request.Context(), property.ShowingRequest{
		PropertyID:    c.Param("id"),
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientPhone:   req.ClientPhone,
		PreferredDate: date,
		TimeSlot:      req.TimeSlot,
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "showing": showing, "requestId": requestIDFrom(c)})
}

func (h *Handler) Agents(c *gin.Context) {
	agents, err := h.properties.GetAgentInfo(c.Request.Context(), "")
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"agents": agents, "count": len(agents)})
}

func (h *Handler) Agent(c *gin.Context) {
	agents, err := h.properties.GetAgentInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"agent": agents[0]})
}

func (h *Handler) PropertyStats(c *gin.Context) {
	st, err := h.properties.GetServiceStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"stats": st})
}
