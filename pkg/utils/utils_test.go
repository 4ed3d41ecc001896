package utils

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
	"transfer_requests_back/pkg/config"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "pay invoice 42", SanitizeText("  <b>pay</b> invoice 42<script>alert(1)</script> "))
	assert.Equal(t, "", SanitizeText("<img src=x onerror=alert(1)>"))
}

func TestNotifyWithoutTransportIsNoop(t *testing.T) {
	m := NewMailer(config.Mail{})
	err := m.NotifyStatusChange(context.Background(), models.TransferRequest{
		PublicID: "abc",
		Status:   workflow.StatusApproved,
		Amount:   decimal.NewFromInt(5),
	}, models.User{Email: "a@b.com", Name: "A"})
	assert.NoError(t, err)
}
