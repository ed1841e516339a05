package board

import (
	"fmt"
	"io"

	"boardcode-go/drivers/i2cdev"
	"boardcode-go/errcode"
	"boardcode-go/services/config"
)

// Opener opens the bus character device at path.
type Opener func(path string) (i2cdev.Bus, error)

// Enumerator turns bus numbers into open buses.
type Enumerator struct {
	Pattern string    // printf pattern with one %d; defaults to /dev/i2c-%d
	Open    Opener    // defaults to i2cdev.Open
	Trace   io.Writer // when set, every bus is wrapped in an i2cdev.Tracer
}

func openDevice(path string) (i2cdev.Bus, error) {
	h, err := i2cdev.Open(path)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (e Enumerator) Path(n int) string {
	pattern := e.Pattern
	if pattern == "" {
		pattern = config.DefaultDevicePattern
	}
	return fmt.Sprintf(pattern, n)
}

// OpenBus opens bus n. Failures carry BusUnavailable unless the opener
// already attached a code.
func (e Enumerator) OpenBus(n int) (i2cdev.Bus, error) {
	open := e.Open
	if open == nil {
		open = openDevice
	}
	b, err := open(e.Path(n))
	if err != nil {
		return nil, errcode.Ensure(errcode.BusUnavailable, "open_bus", err)
	}
	if e.Trace != nil {
		b = i2cdev.NewTracer(b, fmt.Sprintf("i2c-%d", n), e.Trace)
	}
	return b, nil
}

// Available returns the bus numbers from order that can be opened. Each
// bus is closed again before returning.
func (e Enumerator) Available(order []int) []int {
	var ok []int
	for _, n := range order {
		b, err := e.OpenBus(n)
		if err != nil {
			continue
		}
		_ = b.Close()
		ok = append(ok, n)
	}
	return ok
}
