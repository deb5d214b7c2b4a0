// Package coredump reads ESP core dump images.
//
// Two layouts are understood:
//
//   - ELF32 little-endian images, optionally wrapped behind a length
//     prefix or a short flash partition header. Threads come from CORE
//     notes; PT_LOAD program headers and allocated sections become memory
//     segments.
//   - The legacy flat layout: a 20-byte header followed by 16-byte task
//     records.
//
// Every read is bounds-checked. A truncated image yields a *FormatError
// naming the structure that did not fit:
//
//	d, err := coredump.Parse(buf, target.Xtensa)
//	var fe *coredump.FormatError
//	if errors.As(err, &fe) {
//	    // fe.What, fe.Offset, fe.Need
//	}
package coredump
