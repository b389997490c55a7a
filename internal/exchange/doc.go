// Package exchange fetches daily BWIBBU valuation tables from the two
// Taiwanese exchanges and normalizes their rows into models.Record.
//
// TWSE (listed market) serves a flat table keyed by a Gregorian date.
// TPEx (OTC market) expects an ROC-era date and nests its table one level
// deeper with a header row. Everything source-specific is confined to a
// ColumnMap and the response envelope; both fetchers return the same Result.
package exchange
