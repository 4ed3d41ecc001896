package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
)

// Create a transfer request. Body {amount, program_id, receiver_id, approver_group_id, reason, submit}
func (h *Handler) createTransferRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input models.TransferRequestInput
	if !bind(c, &input) {
		return
	}

	req, err := h.service.TransferRequests.Create(c.Request.Context(), a, input)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, req)
}

// List visible requests. Query: status, limit, offset
func (h *Handler) listTransferRequests(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		newErrorResponse(c, err)
		return
	}

	reqs, err := h.service.TransferRequests.List(c.Request.Context(), a, c.Query("status"), limit, offset)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, reqs)
}

func (h *Handler) getTransferRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	req, err := h.service.TransferRequests.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, req)
}

func (h *Handler) editTransferRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input models.TransferRequestInput
	if !bind(c, &input) {
		return
	}

	req, err := h.service.TransferRequests.Edit(c.Request.Context(), a, c.Param("id"), input)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, req)
}

func (h *Handler) submitTransferRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	req, err := h.service.TransferRequests.Submit(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, req)
}

// Review decision. Body {decision: approve|request_changes|reject|block|unblock, reason}
func (h *Handler) reviewTransferRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input models.ReviewInput
	if !bind(c, &input) {
		return
	}

	req, err := h.service.TransferRequests.Review(c.Request.Context(), a, c.Param("id"), input)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, req)
}

func (h *Handler) voidTransferRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	req, err := h.service.TransferRequests.Void(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, req)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Field(key, "must be a non-negative integer")
	}
	return n, nil
}
