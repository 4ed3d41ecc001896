package chainclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ExplorerClient reads receipt status from an Etherscan compatible API.
type ExplorerClient struct {
	client *resty.Client
	apiKey string
}

type explorerReceipt struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  struct {
		Status string `json:"status"`
	} `json:"result"`
}

func NewExplorerClient(baseURL, apiKey string, timeout time.Duration) *ExplorerClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &ExplorerClient{client: client, apiKey: apiKey}
}

func (c *ExplorerClient) ReceiptStatus(ctx context.Context, hash string) (ReceiptStatus, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"module": "transaction",
			"action": "gettxreceiptstatus",
			"txhash": hash,
			"apikey": c.apiKey,
		}).
		SetResult(&explorerReceipt{}).
		Get("/api")
	if err != nil {
		return ReceiptPending, classify(err)
	}
	if resp.IsError() {
		return ReceiptPending, fmt.Errorf("explorer answered %s", resp.Status())
	}

	result := resp.Result().(*explorerReceipt)
	if result.Status == "0" && result.Message != "OK" {
		return ReceiptPending, fmt.Errorf("explorer error: %s", result.Message)
	}
	switch result.Result.Status {
	case "1":
		return ReceiptSuccess, nil
	case "0":
		return ReceiptFailed, nil
	default:
		return ReceiptPending, nil
	}
}
