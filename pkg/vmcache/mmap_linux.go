//go:build linux

package vmcache

import "golang.org/x/sys/unix"

// mapAnonRegion reserves size bytes of address space with no physical
// backing, per spec.md §4.I: PROT_READ|PROT_WRITE,
// MAP_ANON|MAP_PRIVATE|MAP_NORESERVE. Blocks are faulted in by pread,
// not by the mapping itself.
func mapAnonRegion(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
}

func unmapRegion(region []byte) error {
	return unix.Munmap(region)
}

// discardRegion releases the physical pages backing region[off:off+n]
// back to the OS without unmapping the address range, used on evict
// to drop a block's memory while keeping its slot addressable.
func discardRegion(region []byte, off, n int) error {
	return unix.Madvise(region[off:off+n], unix.MADV_DONTNEED)
}
