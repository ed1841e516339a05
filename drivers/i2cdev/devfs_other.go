//go:build !linux

package i2cdev

import (
	"io/fs"

	"boardcode-go/errcode"
)

func openDevfs(path string) (conn, error) {
	return nil, &fs.PathError{Op: "open", Path: path, Err: errcode.Unsupported}
}
