package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-iap/core"
)

// send POSTs the stored payload to the claimed endpoint and classifies the
// response: any 2xx is success, everything else is a retryable failure.
func (d *Dispatcher) send(ctx context.Context, claimed core.ClaimedDelivery) error {
	url := strings.TrimSpace(claimed.URL)
	if url == "" {
		return fmt.Errorf("webhooks: delivery %s has no endpoint url", strings.TrimSpace(claimed.Delivery.ID))
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if secret := strings.TrimSpace(claimed.Secret); secret != "" {
		headers[d.secretHeader()] = secret
	}

	res, err := d.Transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     url,
		Headers: headers,
		Body:    claimed.Payload,
		Timeout: d.requestTimeout(),
	})
	if err != nil {
		return err
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhooks: endpoint returned http status %d", res.StatusCode)
	}
	return nil
}
