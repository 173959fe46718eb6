//go:build !linux

package archive

// adviseRandom is a no-op outside Linux, where FADV_RANDOM has no
// equivalent in the standard library.
func adviseRandom(fd uintptr) {}
