// Package invoicing provides the domain model for issuing tenant-scoped invoices.
//
// This package implements the invoicing bounded context, which is responsible for:
//   - Computing the tax breakdown of a document from its lines (TaxCalculator)
//   - Allocating gap-free sequential document numbers per tenant, year and series (Allocator)
//   - Tracking an invoice through issuance, delivery, payment and cancellation (Invoice)
//
// Key Aggregates:
//   - Invoice: a frozen snapshot of parties, lines and totals plus its lifecycle status
//
// Value Objects:
//   - InvoiceLine, TaxBreakdown, VATGroup, RetentionInfo, PaymentInfo
//   - PaymentRecord: a single payment applied to an invoice
//
// Storage and document rendering are reached through the interfaces in
// repository.go and providers.go; this package performs no I/O itself.
package invoicing
