package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/scottylabs/kennel/internal/store"
)

// DnsRecordRepository is the Postgres implementation of store.DnsRecordRepository.
type DnsRecordRepository struct {
	db *sqlx.DB
}

type dnsRecordRow struct {
	ID               int64         `db:"id"`
	Domain           string        `db:"domain"`
	DeploymentID     sql.NullInt64 `db:"deployment_id"`
	ProviderRecordID string        `db:"provider_record_id"`
	RecordType       string        `db:"record_type"`
	IPAddress        string        `db:"ip_address"`
	CreatedAt        sql.NullTime  `db:"created_at"`
}

func (r dnsRecordRow) toModel() *store.DnsRecord {
	d := &store.DnsRecord{
		ID:               r.ID,
		Domain:           r.Domain,
		ProviderRecordID: r.ProviderRecordID,
		RecordType:       store.DnsRecordType(r.RecordType),
		IPAddress:        r.IPAddress,
		CreatedAt:        r.CreatedAt.Time,
	}
	if r.DeploymentID.Valid {
		d.DeploymentID = &r.DeploymentID.Int64
	}
	return d
}

func (r *DnsRecordRepository) Create(ctx context.Context, d *store.DnsRecord) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO dns_records (domain, deployment_id, provider_record_id, record_type, ip_address)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (domain) DO UPDATE SET
			deployment_id=$2, provider_record_id=$3, record_type=$4, ip_address=$5
		RETURNING id, created_at`,
		d.Domain, d.DeploymentID, d.ProviderRecordID, string(d.RecordType), d.IPAddress,
	).Scan(&d.ID, &d.CreatedAt)
}

func (r *DnsRecordRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dns_records WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dns record: %w", err)
	}
	return nil
}

func (r *DnsRecordRepository) ListByDeployment(ctx context.Context, deploymentID int64) ([]*store.DnsRecord, error) {
	var rows []dnsRecordRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM dns_records WHERE deployment_id=$1`, deploymentID); err != nil {
		return nil, fmt.Errorf("failed to list dns records for deployment: %w", err)
	}
	return toDnsRecordModels(rows), nil
}

func (r *DnsRecordRepository) FindByDomain(ctx context.Context, domain string) (*store.DnsRecord, error) {
	var row dnsRecordRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM dns_records WHERE domain=$1`, domain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find dns record: %w", err)
	}
	return row.toModel(), nil
}

func (r *DnsRecordRepository) List(ctx context.Context) ([]*store.DnsRecord, error) {
	var rows []dnsRecordRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM dns_records ORDER BY domain`); err != nil {
		return nil, fmt.Errorf("failed to list dns records: %w", err)
	}
	return toDnsRecordModels(rows), nil
}

func toDnsRecordModels(rows []dnsRecordRow) []*store.DnsRecord {
	out := make([]*store.DnsRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out
}
