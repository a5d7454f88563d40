// Package core implements the bulk lead import pipeline.
//
// An import runs in two calls. [Service.Validate] takes an uploaded
// spreadsheet through these stages:
//
//  1. [ParseWorkbook] detects .xlsx or delimited text, strips byte order
//     marks and recovers non-UTF-8 cells, flagging them with an
//     [EncodingWarning].
//  2. [HeaderResolver] maps localized column headers onto canonical fields
//     through a static synonym table and fails with a [FormatError] listing
//     every missing required column.
//  3. [RowValidator] checks presence, the lead type enumeration and email
//     shape, and gathers categories into a [ReferenceSet].
//  4. [ReferenceResolver] checks all distinct categories with one catalog
//     read; each row using a missing category gets its own [RowError].
//  5. [Ledger] stores the batch and every staged row in one transaction,
//     written in chunks, and issues a validation token.
//
// [Service.Commit] then takes the token plus a possibly edited row set,
// re-validates and re-resolves it, and writes accepted rows in chunks, each
// chunk its own transaction, on a bounded worker pool. A failed chunk is
// reported as a row -1 error and does not undo other chunks. The ledger
// entry is finalized with the counts achieved even when the caller goes
// away mid-commit.
//
// Storage is behind small interfaces ([LedgerStore], [CatalogStore],
// [LeadStore], [AuditStore], [SourceArchive]); [PostgresStore] implements
// all of them.
package core
