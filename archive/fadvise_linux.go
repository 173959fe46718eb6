//go:build linux

package archive

import "golang.org/x/sys/unix"

// adviseRandom hints the kernel that reads against f will be random-access
// rather than sequential, matching compactindexsized/query.go's Fadvise
// call for its own positional-read index files.
func adviseRandom(fd uintptr) {
	_ = unix.Fadvise(int(fd), 0, 0, unix.FADV_RANDOM)
}
