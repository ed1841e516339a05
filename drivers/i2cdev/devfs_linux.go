//go:build linux

package i2cdev

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

type devfs struct{ fd int }

func openDevfs(path string) (conn, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	return &devfs{fd: fd}, nil
}

func (d *devfs) setAddress(addr uint16) error {
	return unix.IoctlSetInt(d.fd, I2CSlaveForce, int(addr))
}

func (d *devfs) read(p []byte) (int, error)  { return unix.Read(d.fd, p) }
func (d *devfs) write(p []byte) (int, error) { return unix.Write(d.fd, p) }
func (d *devfs) close() error                { return unix.Close(d.fd) }
