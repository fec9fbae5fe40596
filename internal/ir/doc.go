// Package ir provides the data model shared by every macrome package.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Paths are project-relative, slash-separated and NFC-normalised
//   - Annotations are an ordered list of pairs, never a map: the first key of
//     an owned header is always the ownership marker
//   - Ordering of journal records uses logical clocks (seq), never wall time
package ir
