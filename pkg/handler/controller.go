package handler

import (
	"github.com/gin-gonic/gin"

	"transfer_requests_back/models"
)

// Dispatch approved requests. Body {request_ids, method: chain|manual, reference}
func (h *Handler) dispatchTransfers(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input models.DispatchInput
	if !bind(c, &input) {
		return
	}

	items, err := h.service.Reconciliation.Dispatch(c.Request.Context(), a, input)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, items)
}

// Record a broadcast payment. Body {request_ids, hash, from, to}
func (h *Handler) transfersPaymentSent(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input models.PaymentSentInput
	if !bind(c, &input) {
		return
	}

	transfers, err := h.service.Reconciliation.TransfersPaymentSent(c.Request.Context(), a, input)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, transfers)
}

func (h *Handler) cancelTransfers(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input models.CancelInput
	if !bind(c, &input) {
		return
	}

	transfers, err := h.service.Reconciliation.CancelTransfers(c.Request.Context(), a, input)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, transfers)
}

func (h *Handler) retryTransfer(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input models.RetryInput
	if !bind(c, &input) {
		return
	}

	transfer, err := h.service.Reconciliation.RetryTransfer(c.Request.Context(), a, input.RequestID)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, transfer)
}
