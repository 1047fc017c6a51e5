// Package importer provides the bulk import and reconciliation engine.
//
// The package turns an uploaded CSV or spreadsheet into created or updated
// customers and screws. It has no knowledge of HTTP or of a particular
// database; callers hand it raw bytes and a [Store], and get a [Result] back.
//
// # Pipeline
//
// Every call to [Engine.Import] runs the same stages in order:
//
//  1. Parse: raw bytes become [RawRecord]s keyed by column label ([Parse]).
//  2. Map: labels are projected onto canonical field names and the
//     entity's timestamp field is normalized to RFC 3339 ([MapRecords]).
//  3. Decode: each [MappedRecord] becomes a typed row
//     ([CustomerImportRow] or [ScrewImportRow]).
//  4. Validate: required and type rules produce errors, format rules
//     produce warnings ([Validator]). Any error rejects the whole import
//     before a transaction is opened.
//  5. Resolve: referenced names (platforms, component types, materials) are
//     looked up and created in bulk, once per batch ([Resolver]).
//  6. Reconcile: rows are split into creates and updates, and applied in two
//     phases ([Reconciler]).
//
// Steps 5 and 6 repeat per batch inside a single transaction. A failure in
// any batch rolls back everything written by the run.
//
// # Matching
//
// With UpdateExisting set, an incoming row updates an existing entity whose
// name matches according to [MatchMode]. [MatchContains] keeps the legacy
// behavior: the existing name contains the incoming one. When several
// entities match, the most specific one wins (see [SelectMatch]).
//
// # Error Handling
//
// Run-level failures wrap one of the package sentinels ([ErrUnsupportedFormat],
// [ErrReferenceResolution], [ErrReconciliation], ...). [MapError] turns any
// error into a [UserMessage] with a support code.
package importer
