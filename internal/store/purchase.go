package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/appflight/appflight/internal/session"
)

type purchaseResponse struct {
	FailureType     string `plist:"failureType"`
	CustomerMessage string `plist:"customerMessage"`
	JingleDocType   string `plist:"jingleDocType"`
	Status          int    `plist:"status"`
}

// Purchase acquires a zero-price license for the item. Repeating a successful
// purchase is safe: the store answers an owned item with purchaseSuccess
// again rather than an error.
func (c *Client) Purchase(ctx context.Context, itemID int64, acct session.Account) error {
	if acct.DSID == "" {
		return fmt.Errorf("purchase: account snapshot missing directory services id")
	}

	body := map[string]any{
		"appExtVrsId":               "0",
		"buyWithoutAuthorization":   "true",
		"guid":                      c.guid,
		"hasAskedToFulfillPreorder": "true",
		"hasDoneAgeCheck":           "true",
		"needDiv":                   "0",
		"origPage":                  "Software-" + strconv.FormatInt(itemID, 10),
		"origPageLocation":          "Buy",
		"price":                     "0",
		"pricingParameters":         "STDQ",
		"productType":               "C",
		"salableAdamId":             itemID,
	}

	var resp purchaseResponse
	if _, err := c.postPlist(ctx, c.endpoints.Purchase, &acct, body, &resp); err != nil {
		return fmt.Errorf("purchase: %w", err)
	}

	if resp.JingleDocType == "purchaseSuccess" && resp.Status == 0 {
		log.Info("license acquired", "itemId", itemID)
		return nil
	}

	if err := classifyFailure(resp.FailureType, resp.CustomerMessage); err != nil {
		return fmt.Errorf("purchase %d: %w", itemID, err)
	}
	return fmt.Errorf("purchase %d: unexpected document type %q", itemID, resp.JingleDocType)
}
