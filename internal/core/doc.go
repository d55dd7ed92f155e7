// Package core runs bulk spreadsheet imports for the inventory service.
//
// The package holds every piece of domain logic and no transport code, so
// the HTTP layer, a CLI or a test drives it the same way.
//
// # Pipeline
//
// An upload goes through these stages, each in its own file:
//
//  1. [ReadSheet] decodes CSV (any common encoding and delimiter) or XLSX
//     into raw rows; [LocateHeader] skips banner rows and maps headers
//     through the import type's [headers.Dictionary].
//  2. [Coerce] validates and types each row against a [FieldRuleSet].
//  3. [Resolver] matches the row's natural keys against the [Store] and
//     decides NEW, SKIPPED_DUPLICATE, OVERWRITTEN or
//     AUTO_CREATED_REFERENCE.
//  4. [Reporter] saves the job to the [JobStore] and pushes a [Snapshot] on
//     the [Bus].
//
// [Service.StartImport] accepts a file, reserves a slot in the
// [ImportLimiter] and runs the stages in a background goroutine. Clients
// poll [Service.Snapshot] or subscribe with [Service.Subscribe]; the
// [Estimator] tells them up front which one to use.
//
// # Import Types
//
// Import types are plain [Definition] values assembled into a [Registry]
// at startup. The inventory types live in the imports subpackage.
//
// # Error Handling
//
// Row errors reject one row and are sampled on the job. Systemic errors
// ([SystemicError]) fail the whole job. [MapError] turns either into a coded
// user message:
//
//   - FILE001-FILE005: File errors (size, encoding, format, empty)
//   - VAL001-VAL006: Validation errors
//   - IMP001-IMP008: Job errors (cancelled, busy, not found)
//   - DB001-DB005: Store errors
package core
