package handler

import (
	"github.com/gin-gonic/gin"

	"transfer_requests_back/models"
)

// Replay a Forward event. Body {chainName, id, from, to, value, transactionHash}
func (h *Handler) confirmTransfer(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var event models.ChainEvent
	if !bind(c, &event) {
		return
	}

	transfer, err := h.service.Reconciliation.ManualConfirm(c.Request.Context(), a, event)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, transfer)
}
