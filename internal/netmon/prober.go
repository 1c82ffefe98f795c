package netmon

import (
	"context"
	"net/http"
	"time"

	"github.com/mlefevre/brokersync/internal/models"
)

// HTTPProber probes connectivity with a HEAD request against a known
// endpoint and derives an effective link type from the round-trip time.
// A failed or timed-out request classifies the link as offline.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber creates an HTTPProber with a bounded request timeout.
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		URL: url,
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) models.ConnectivitySample {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return models.ConnectivitySample{IsOnline: false, EffectiveType: models.EffectiveTypeUnknown}
	}

	start := time.Now()
	resp, err := p.Client.Do(req)
	if err != nil {
		return models.ConnectivitySample{IsOnline: false, EffectiveType: models.EffectiveTypeUnknown}
	}
	resp.Body.Close()

	return models.ConnectivitySample{
		IsOnline:      true,
		EffectiveType: classifyRTT(time.Since(start)),
	}
}

// classifyRTT buckets a round-trip time into the effective-type enum.
// The thresholds follow the browser Network Information API heuristics.
func classifyRTT(rtt time.Duration) models.EffectiveType {
	switch {
	case rtt < 275*time.Millisecond:
		return models.EffectiveType4G
	case rtt < 1400*time.Millisecond:
		return models.EffectiveType3G
	case rtt < 2000*time.Millisecond:
		return models.EffectiveType2G
	default:
		return models.EffectiveTypeSlow2G
	}
}
