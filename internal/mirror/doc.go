// Package mirror is the incremental mirroring engine.
//
// A run builds a Manifest, scans the destination tree into a LocalIndex,
// plans the missing artifacts and hands them to a bounded Pool that fetches
// each one and persists it with an atomic temp-file-and-rename write. The
// filesystem is the only durable state: an artifact at its final path is the
// record that it was mirrored.
package mirror
