package handler

import (
	"github.com/gin-gonic/gin"

	"transfer_requests_back/models"
)

// Message the caller signs with personal_sign before calling verify.
func (h *Handler) walletMessage(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	wrapOkJSON(c, gin.H{"message": h.service.Wallet.OwnershipMessage(a)})
}

// Body {address, signature}
func (h *Handler) verifyWallet(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input models.WalletVerifyInput
	if !bind(c, &input) {
		return
	}

	user, err := h.service.Wallet.VerifyWallet(c.Request.Context(), a, input)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	wrapOkJSON(c, user)
}
