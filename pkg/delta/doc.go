// Package delta fetches the blocks a ledger has produced since a known height.
//
// A delta is the contiguous range (after, head], where head is the ledger
// height observed once at the start of a fetch. Every height in the range is
// requested concurrently and the results are reassembled by height, so the
// returned slice is always ascending and gap-free regardless of the order in
// which responses arrive.
//
// Fetching is all-or-nothing. A transport error, a height the ledger cannot
// serve, or a block without a hash or number fails the whole delta; callers
// never observe a partial range and can safely retry from the same height.
//
// Failure kinds, all matchable with errors.Is:
//
//   - ErrTransport: the ledger was unreachable or returned an error.
//   - ErrStartingPointUnavailable: head is below the requested height.
//   - ErrTooManyBlocks: the range cannot be held in memory. Checked before
//     any block request is issued.
//   - ErrMissingBlock: the ledger reported a head but has no block at a
//     height at or below it.
//   - ErrIncompleteBlock: a block came back without its hash or number.
//
// Per-height failures are wrapped in *HeightError.
package delta
