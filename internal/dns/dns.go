// Package dns implements the DNS provider contract spec section 6 names,
// with a Cloudflare-backed implementation wrapped in a circuit breaker so
// a flaky provider degrades deploys to "no DNS record" instead of
// cascading failures through the deployer.
package dns

import (
	"context"

	"github.com/scottylabs/kennel/internal/store"
)

// RecordInput is the data needed to create one A or AAAA record.
type RecordInput struct {
	Name       string
	RecordType store.DnsRecordType
	IP         string
}

// RecordResult is what the provider hands back after creating a record.
type RecordResult struct {
	ProviderRecordID string
}

// Provider is the abstracted DNS capability set. Concrete
// implementations may call Cloudflare's zone API, or any other registrar
// API that can create/delete/list records for a zone.
type Provider interface {
	CreateRecord(ctx context.Context, in RecordInput) (RecordResult, error)
	DeleteRecord(ctx context.Context, providerRecordID string) error
	ListRecords(ctx context.Context) ([]RecordResult, error)
}
