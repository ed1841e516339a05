package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"boardcode-go/drivers/i2cdev"
	"boardcode-go/errcode"
	"boardcode-go/events"
	"boardcode-go/services/board"
	"boardcode-go/services/config"
	"boardcode-go/services/logging"
	"boardcode-go/x/conv"
	"boardcode-go/x/mathx"
)

const (
	flagBoard         = "board"
	flagConfig        = "config"
	flagTrace         = "trace"
	flagLogLevel      = "log-level"
	flagDevicePattern = "device-pattern"
	flagAddr          = "addr"
	flagLeft          = "left"
	flagStrict        = "strict"
	flagInterval      = "interval"
)

// session is the state shared by every command of one invocation.
type session struct {
	out    io.Writer
	cfg    *config.Config
	logger *zap.SugaredLogger
	opts   []board.Option
}

// newApp builds the CLI. Extra manager options are appended after the
// configured ones.
func newApp(out io.Writer, opts ...board.Option) *cli.App {
	s := &session{out: out, opts: opts}
	addrFlag := &cli.StringFlag{Name: flagAddr, Aliases: []string{"a"}, Usage: "device `ADDRESS` (e.g. 0x71); default is the board's first device"}

	app := &cli.App{
		Name:      "boardctl",
		Usage:     "discover and drive I2C peripheral boards",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagBoard,
				Aliases: []string{"b"},
				Usage:   "board `NAME` (" + strings.Join(config.Boards(), ", ") + ")",
				EnvVars: []string{"BOARDCTL_BOARD"},
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagTrace,
				Usage: "record bus transactions as CBOR to `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:   flagDevicePattern,
				Usage:  "bus device path `PATTERN` with one %d",
				Hidden: true,
			},
		},
		After: func(*cli.Context) error {
			if s.logger != nil {
				_ = s.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "scan",
				Usage:  "probe the board and list the devices found",
				Action: s.scan,
			},
			{
				Name:   "buses",
				Usage:  "list the bus numbers the board would scan that can be opened",
				Action: s.buses,
			},
			{
				Name:      "led",
				Usage:     "set the RGB LED colour, components 0-255",
				ArgsUsage: "R G B",
				Flags:     []cli.Flag{addrFlag},
				Action:    s.led,
			},
			{
				Name:      "fan",
				Usage:     "set the fan speed, 0-100",
				ArgsUsage: "SPEED",
				Flags:     []cli.Flag{addrFlag},
				Action:    s.fan,
			},
			{
				Name:      "door",
				Usage:     "move the curtain/door actuator, 0-100",
				ArgsUsage: "POSITION",
				Flags:     []cli.Flag{addrFlag},
				Action:    s.door,
			},
			{
				Name:      "display",
				Usage:     "show up to four characters (0-9 A-F - _)",
				ArgsUsage: "TEXT",
				Flags: []cli.Flag{
					addrFlag,
					&cli.BoolFlag{Name: flagLeft, Usage: "align to the left instead of the right"},
					&cli.BoolFlag{Name: flagStrict, Usage: "fail on characters without a glyph instead of leaving them blank"},
				},
				Action: s.display,
			},
			{
				Name:   "key",
				Usage:  "read the keypad once (0 = no key)",
				Flags:  []cli.Flag{addrFlag},
				Action: s.key,
			},
			{
				Name:  "watch",
				Usage: "print key presses and releases until interrupted",
				Flags: []cli.Flag{
					addrFlag,
					&cli.DurationFlag{Name: flagInterval, Value: 100 * time.Millisecond, Usage: "poll interval"},
				},
				Action: s.watch,
			},
			{
				Name:      "trace",
				Usage:     "print a bus trace recorded with --trace",
				ArgsUsage: "FILE",
				Action:    s.dumpTrace,
			},
		},
	}
	for _, cmd := range app.Commands {
		if cmd.Name != "trace" {
			cmd.Before = s.setup
		}
	}
	return app
}

func (s *session) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagConfig), c.String(flagBoard))
	if err != nil {
		return err
	}
	if v := c.String(flagTrace); v != "" {
		cfg.Trace.Path = v
	}
	if v := c.String(flagLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String(flagDevicePattern); v != "" {
		cfg.DevicePattern = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging, "boardctl")
	if err != nil {
		return err
	}
	s.cfg, s.logger = cfg, logger
	return nil
}

// withManager scans the board, runs fn and releases everything.
func (s *session) withManager(c *cli.Context, fn func(m *board.Manager) error) (err error) {
	opts := append([]board.Option{board.WithLogger(s.logger)}, s.opts...)
	m, err := board.NewFromConfig(s.cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); err == nil {
			err = cerr
		}
	}()
	if err := m.Scan(c.Context); err != nil {
		return err
	}
	return fn(m)
}

func (s *session) scan(c *cli.Context) error {
	return s.withManager(c, func(m *board.Manager) error {
		for _, inst := range m.Instances() {
			fmt.Fprintf(s.out, "%-9s bus %-2d addr %s\n", inst.Family, inst.Bus, conv.AddrHex(inst.Addr))
		}
		return nil
	})
}

func (s *session) buses(c *cli.Context) error {
	plan, err := board.PlanFromConfig(s.cfg)
	if err != nil {
		return err
	}
	enum := board.Enumerator{Pattern: s.cfg.DevicePattern}
	for _, n := range enum.Available(plan.Buses.Order()) {
		fmt.Fprintln(s.out, enum.Path(n))
	}
	return nil
}

func (s *session) led(c *cli.Context) error {
	if c.NArg() != 3 {
		return errcode.New(errcode.InvalidParams, "led", "expected R G B")
	}
	var rgb [3]int
	for i := range rgb {
		v, err := strconv.Atoi(c.Args().Get(i))
		if err != nil {
			return errcode.Wrap(errcode.InvalidParams, "led", err)
		}
		rgb[i] = v
	}
	addr, err := parseAddr(c.String(flagAddr))
	if err != nil {
		return err
	}
	return s.withManager(c, func(m *board.Manager) error {
		return m.SetLEDColorAt(addr, rgb[0], rgb[1], rgb[2])
	})
}

func (s *session) fan(c *cli.Context) error {
	speed, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return errcode.Wrap(errcode.InvalidSpeed, "fan", err)
	}
	addr, err := parseAddr(c.String(flagAddr))
	if err != nil {
		return err
	}
	return s.withManager(c, func(m *board.Manager) error {
		return m.SetFanSpeedAt(addr, speed)
	})
}

func (s *session) door(c *cli.Context) error {
	pos, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return errcode.Wrap(errcode.InvalidPosition, "door", err)
	}
	addr, err := parseAddr(c.String(flagAddr))
	if err != nil {
		return err
	}
	return s.withManager(c, func(m *board.Manager) error {
		return m.SetDoorPositionAt(addr, pos)
	})
}

func (s *session) display(c *cli.Context) error {
	addr, err := parseAddr(c.String(flagAddr))
	if err != nil {
		return err
	}
	text := c.Args().First()
	return s.withManager(c, func(m *board.Manager) error {
		if c.Bool(flagStrict) {
			return m.DisplayStringStrictAt(addr, text, !c.Bool(flagLeft))
		}
		return m.DisplayStringAt(addr, text, !c.Bool(flagLeft))
	})
}

func (s *session) key(c *cli.Context) error {
	addr, err := parseAddr(c.String(flagAddr))
	if err != nil {
		return err
	}
	return s.withManager(c, func(m *board.Manager) error {
		key, err := m.GetKeyAt(addr)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, key)
		return nil
	})
}

func (s *session) watch(c *cli.Context) error {
	addr, err := parseAddr(c.String(flagAddr))
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.withManager(c, func(m *board.Manager) error {
		err := m.WatchKeys(ctx, addr, c.Duration(flagInterval), func(ev events.KeyEvent) {
			state := "released"
			if ev.Pressed {
				state = "pressed"
			}
			fmt.Fprintf(s.out, "%s key %d %s\n", conv.AddrHex(ev.Addr), ev.Key, state)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func (s *session) dumpTrace(c *cli.Context) error {
	if c.NArg() != 1 {
		return errcode.New(errcode.InvalidParams, "trace", "expected FILE")
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return errors.Wrap(err, "opening bus trace")
	}
	defer f.Close()

	dec := i2cdev.NewTraceDecoder(f)
	for {
		var ev i2cdev.TraceEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "decoding bus trace")
		}
		fmt.Fprintln(s.out, ev)
	}
}

// parseAddr accepts decimal or 0x-prefixed addresses; empty means default.
func parseAddr(s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil || !mathx.Between(v, 0x03, 0x77) {
		return 0, errcode.New(errcode.InvalidParams, "addr", "not a 7-bit address: "+s)
	}
	return uint16(v), nil
}
