// Package crash holds the data model shared by every decoder stage.
//
// Values are created fresh for each decode call and never persisted. The
// struct tags exist so the CLI can export a result as YAML or msgpack.
//
// # Locations
//
// A Location threads through the whole pipeline. The panic parser creates
// bare addresses, the debugger bridges upgrade them to "address + line"
// or to fully parsed method/file/line locations, and the formatter renders
// whichever shape it receives:
//
//	0x400d129d: loop () at /sketch/sketch.ino:11
//	0x3ffb2270: ??
package crash
