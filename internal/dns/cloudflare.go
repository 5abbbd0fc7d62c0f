package dns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/scottylabs/kennel/internal/core/errors"
)

const cloudflareAPIBase = "https://api.cloudflare.com/client/v4"

// CloudflareConfig maps zone suffixes (e.g. "scottylabs.org") to the
// Cloudflare zone ID that owns them, per DNS_CLOUDFLARE_ZONES.
type CloudflareConfig struct {
	APIToken  string
	ZoneByDomain map[string]string
}

// Cloudflare is a Provider backed by Cloudflare's DNS API. Calls are
// wrapped in a gobreaker circuit breaker: after enough consecutive
// failures, the breaker opens and record creation fails fast rather than
// blocking the deployer on a degraded provider.
type Cloudflare struct {
	cfg     CloudflareConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewCloudflare(cfg CloudflareConfig) *Cloudflare {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cloudflare-dns",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Cloudflare{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
	}
}

// zoneFor matches a record name to a configured zone by longest-suffix.
func (c *Cloudflare) zoneFor(name string) (string, error) {
	var bestSuffix, bestZone string
	for suffix, zoneID := range c.cfg.ZoneByDomain {
		if strings.HasSuffix(name, suffix) && len(suffix) > len(bestSuffix) {
			bestSuffix, bestZone = suffix, zoneID
		}
	}
	if bestZone == "" {
		return "", apperrors.New(apperrors.ErrTypeDnsProvider, fmt.Sprintf("no configured zone matches %q", name))
	}
	return bestZone, nil
}

type cfRecordRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

type cfRecordResponse struct {
	Success bool `json:"success"`
	Result  struct {
		ID string `json:"id"`
	} `json:"result"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Cloudflare) CreateRecord(ctx context.Context, in RecordInput) (RecordResult, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		zoneID, err := c.zoneFor(in.Name)
		if err != nil {
			return nil, err
		}

		body, err := json.Marshal(cfRecordRequest{
			Type:    string(in.RecordType),
			Name:    in.Name,
			Content: in.IP,
			TTL:     1,
		})
		if err != nil {
			return nil, err
		}

		url := fmt.Sprintf("%s/zones/%s/dns_records", cloudflareAPIBase, zoneID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrTypeDnsProvider, "cloudflare request failed", err)
		}
		defer resp.Body.Close()

		var cfResp cfRecordResponse
		if err := json.NewDecoder(resp.Body).Decode(&cfResp); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrTypeDnsProvider, "failed to decode cloudflare response", err)
		}
		if !cfResp.Success {
			return nil, apperrors.New(apperrors.ErrTypeDnsProvider, fmt.Sprintf("cloudflare rejected record: %+v", cfResp.Errors))
		}
		return RecordResult{ProviderRecordID: cfResp.Result.ID}, nil
	})
	if err != nil {
		return RecordResult{}, err
	}
	return result.(RecordResult), nil
}

func (c *Cloudflare) DeleteRecord(ctx context.Context, providerRecordID string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		// The zone for a given record ID isn't known locally; Cloudflare
		// scopes deletes by zone so callers are expected to have recorded
		// it, but this contract only promises "delete by provider ID" per
		// spec section 6, so zone lookup happens via a zone-less account
		// endpoint here is not available — callers that need this should
		// keep the zone alongside the provider ID. Kennel stores DNS
		// records per-domain, not per-zone, so this performs a best-effort
		// delete against every configured zone.
		for _, zoneID := range c.cfg.ZoneByDomain {
			url := fmt.Sprintf("%s/zones/%s/dns_records/%s", cloudflareAPIBase, zoneID, providerRecordID)
			req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

			resp, err := c.client.Do(req)
			if err != nil {
				continue
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil, nil
			}
		}
		return nil, nil
	})
	return err
}

func (c *Cloudflare) ListRecords(ctx context.Context) ([]RecordResult, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		zoneIDs := make([]string, 0, len(c.cfg.ZoneByDomain))
		for _, zoneID := range c.cfg.ZoneByDomain {
			zoneIDs = append(zoneIDs, zoneID)
		}
		sort.Strings(zoneIDs)

		var all []RecordResult
		for _, zoneID := range zoneIDs {
			url := fmt.Sprintf("%s/zones/%s/dns_records", cloudflareAPIBase, zoneID)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

			resp, err := c.client.Do(req)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrTypeDnsProvider, "cloudflare request failed", err)
			}

			var listResp struct {
				Result []struct {
					ID string `json:"id"`
				} `json:"result"`
			}
			err = json.NewDecoder(resp.Body).Decode(&listResp)
			resp.Body.Close()
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrTypeDnsProvider, "failed to decode cloudflare response", err)
			}
			for _, r := range listResp.Result {
				all = append(all, RecordResult{ProviderRecordID: r.ID})
			}
		}
		return all, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]RecordResult), nil
}
