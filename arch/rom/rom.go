// Package rom implements the ROM/boot-image component: a named region of
// raw bytes loaded from a file and exposed at a configured physical
// address. Maps the image file with unix.Mmap the way a shared ring
// buffer gets mapped, here mapping a boot image file instead of a
// kernel-shared io_uring ring.
package rom

import (
	"golang.org/x/sys/unix"

	"github.com/mgsim-go/mgsim/sim"
)

// ROM is a memory-mapped, read-only boot image exposed at PhysAddr.
type ROM struct {
	obj      *sim.Object
	data     []byte
	fd       int
	physAddr uint64
}

// Load mmaps path read-only and wraps it as a ROM exposed at physAddr.
func Load(obj *sim.Object, path string, physAddr uint64) (*ROM, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, sim.NewDeviceIOError("rom.Load", path, err.Error())
	}
	st, err := unixFstat(fd)
	if err != nil {
		unix.Close(fd)
		return nil, sim.NewDeviceIOError("rom.Load", path, err.Error())
	}
	if st == 0 {
		unix.Close(fd)
		return &ROM{obj: obj, data: nil, fd: fd, physAddr: physAddr}, nil
	}
	data, err := unix.Mmap(fd, 0, int(st), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		unix.Close(fd)
		return nil, sim.NewDeviceIOError("rom.Load", path, err.Error())
	}
	return &ROM{obj: obj, data: data, fd: fd, physAddr: physAddr}, nil
}

func unixFstat(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

// Close unmaps the image and closes the backing file descriptor.
func (r *ROM) Close() error {
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			return err
		}
	}
	return unix.Close(r.fd)
}

// PhysAddr returns the configured physical base address this ROM is
// exposed at.
func (r *ROM) PhysAddr() uint64 { return r.physAddr }

// Size returns the image size in bytes.
func (r *ROM) Size() int64 { return int64(len(r.data)) }

// Read returns a copy of size bytes at the given physical address, or
// false if the range falls outside the mapped image.
func (r *ROM) Read(addr uint64, size int) ([]byte, bool) {
	if addr < r.physAddr {
		return nil, false
	}
	off := addr - r.physAddr
	if off+uint64(size) > uint64(len(r.data)) {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, r.data[off:off+uint64(size)])
	return out, true
}
