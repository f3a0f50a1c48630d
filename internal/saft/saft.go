// Package saft exports fiscal documents in a SAF-T PT-shaped XML subset
// covering Header and SourceDocuments.SalesInvoices.Invoice[]; full schema
// fidelity is out of scope (§1).
package saft

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tolvera-hq/saborpos/internal/platform/logging"
)

// Header is the SAF-T file header subset.
type Header struct {
	XMLName      xml.Name `xml:"Header"`
	TaxRegistrationNumber string `xml:"TaxRegistrationNumber"`
	StartDate    string   `xml:"StartDate"`
	EndDate      string   `xml:"EndDate"`
	SoftwareName string   `xml:"SoftwareName"`
}

// Invoice is one SalesInvoices.Invoice entry.
type Invoice struct {
	InvoiceNo     string `xml:"InvoiceNo"`
	InvoiceType   string `xml:"InvoiceType"`
	InvoiceDate   string `xml:"InvoiceDate"`
	CustomerTaxID string `xml:"CustomerTaxID,omitempty"`
	GrossTotal    string `xml:"DocumentTotals>GrossTotal"`
}

// SalesInvoices wraps the Invoice list.
type SalesInvoices struct {
	XMLName  xml.Name  `xml:"SalesInvoices"`
	Invoices []Invoice `xml:"Invoice"`
}

// SourceDocuments is the document-body container.
type SourceDocuments struct {
	XMLName       xml.Name      `xml:"SourceDocuments"`
	SalesInvoices SalesInvoices `xml:"SalesInvoices"`
}

// AuditFile is the exported document root.
type AuditFile struct {
	XMLName         xml.Name        `xml:"AuditFile"`
	Header          Header          `xml:"Header"`
	SourceDocuments SourceDocuments `xml:"SourceDocuments"`
}

// Exporter reads fiscal documents in a tenant+date range and renders them.
type Exporter struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

func NewExporter(pool *pgxpool.Pool) *Exporter {
	return &Exporter{pool: pool, log: logging.GetDefault().Component("saft")}
}

// Export produces the XML-encoded audit file and records an audit log
// entry for the export itself.
func (e *Exporter) Export(ctx context.Context, tenantID uuid.UUID, taxRegistrationNumber string, start, end time.Time) ([]byte, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT document_number, document_type, created_at, COALESCE(customer_tax_id, ''), total_amount
		FROM fiscal_documents
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at
	`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("saft: query fiscal documents: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var number int
		var docType, taxID string
		var createdAt time.Time
		var total string
		if err := rows.Scan(&number, &docType, &createdAt, &taxID, &total); err != nil {
			return nil, err
		}
		invoices = append(invoices, Invoice{
			InvoiceNo:     fmt.Sprintf("%s %d", docType, number),
			InvoiceType:   docType,
			InvoiceDate:   createdAt.Format("2006-01-02"),
			CustomerTaxID: taxID,
			GrossTotal:    total,
		})
	}

	file := AuditFile{
		Header: Header{
			TaxRegistrationNumber: taxRegistrationNumber,
			StartDate:             start.Format("2006-01-02"),
			EndDate:               end.Format("2006-01-02"),
			SoftwareName:          "saborpos",
		},
		SourceDocuments: SourceDocuments{SalesInvoices: SalesInvoices{Invoices: invoices}},
	}

	out, err := xml.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("saft: marshal audit file: %w", err)
	}

	if _, err := e.pool.Exec(ctx, `
		INSERT INTO audit_log (tenant_id, entity_type, action, payload)
		VALUES ($1, 'SAFT_EXPORT', 'EXPORT', jsonb_build_object('invoice_count', $2))
	`, tenantID, len(invoices)); err != nil {
		e.log.Warn("failed to record saft export audit entry", "error", err)
	}

	return append([]byte(xml.Header), out...), nil
}
