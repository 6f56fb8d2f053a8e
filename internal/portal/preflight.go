package portal

import (
	"context"
	"fmt"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"resultsync-backend/lib/telemetry"
)

// Preflight checks plain HTTP reachability of the portal before paying
// the cost of booting a browser. It goes through the Cloudflare bypass
// transport because some portals front their login page with it.
func Preflight(ctx context.Context, portalURL string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	telemetry.InstrumentResty(client, "resultsync.portal")

	res, err := client.R().SetContext(ctx).Get(portalURL)
	if err != nil {
		return &TransportError{Op: "preflight", Err: err}
	}
	if res.StatusCode() >= 500 {
		return &TransportError{
			Op:  "preflight",
			Err: fmt.Errorf("portal returned status %d", res.StatusCode()),
		}
	}
	return nil
}
