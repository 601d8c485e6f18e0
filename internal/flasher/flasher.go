// Package flasher programs a Wombat's application flash through its
// bootloader.
package flasher

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bigbag/sw8b-flasher/internal/bus"
	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

// ErrBootloaderNotFound is returned when the device does not answer after
// being sent into its bootloader.
var ErrBootloaderNotFound = errors.New("bootloader not found")

// StageError records the stage at which a run stopped.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Programmer drives the bootloader protocol over a bus. A Programmer runs
// one image at a time and is not safe for concurrent use.
type Programmer struct {
	bus   bus.Bus
	cfg   Config
	state State
}

// New creates a Programmer for the device on b.
func New(b bus.Bus, opts ...Option) *Programmer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Programmer{bus: b, cfg: cfg, state: StateIdle}
}

// State returns the stage the programmer is in.
func (p *Programmer) State() State {
	return p.state
}

// Program writes the raw image read from r to the device. size is the image
// length in bytes, used for progress only; pass 0 if unknown.
//
// There is no verify pass. After a failure in the writing or finalizing
// stage the target is in an unknown state and must be reflashed.
func (p *Programmer) Program(ctx context.Context, r io.Reader, size int64) error {
	if p.cfg.Lock != nil {
		release, err := p.cfg.Lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire bus: %w", err)
		}
		defer release()
	}

	p.state = Next(StateIdle, true)
	stages := []func(context.Context) error{
		p.connect,
		p.erase,
		func(ctx context.Context) error { return p.write(ctx, r, size) },
		p.finalize,
	}
	for _, stage := range stages {
		current := p.state
		err := stage(ctx)
		p.state = Next(current, err == nil)
		if err != nil {
			p.logError("programming failed", "stage", current.String(), "error", err)
			return &StageError{State: current, Err: err}
		}
	}

	p.report("SUCCESS!")
	return nil
}

func (p *Programmer) connect(ctx context.Context) error {
	v, err := p.queryVersion()
	if err != nil {
		p.report("Connecting...")
		p.logDebug("version query failed", "error", err)
	} else if v.InBoot() {
		p.logInfo("device already in bootloader", "version", v.String())
		return nil
	}

	if _, err := p.bus.Transfer(protocol.JumpToBoot()); err != nil {
		p.logDebug("jump to bootloader", "error", err)
	}
	if err := p.bus.HardReset(); err != nil {
		p.logWarn("hard reset failed", "error", err)
	}
	if err := sleep(ctx, p.cfg.Delays.Boot); err != nil {
		return err
	}

	v, err = p.queryVersion()
	if err != nil {
		p.report("Error: Bootloader not found.")
		return fmt.Errorf("%w: %v", ErrBootloaderNotFound, err)
	}
	if !v.InBoot() {
		p.logWarn("device answered outside bootloader", "version", v.String())
	} else {
		p.logInfo("bootloader found", "version", v.String())
	}
	return nil
}

func (p *Programmer) erase(_ context.Context) error {
	if err := p.command(protocol.EraseFlashPage(0)); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	p.report("Erasing...")
	return nil
}

func (p *Programmer) write(ctx context.Context, r io.Reader, size int64) error {
	total := 0
	if size > 0 {
		total = int((size + protocol.RowSize - 1) / protocol.RowSize)
	}

	var (
		row         [protocol.RowSize]byte
		wordAddress uint32
		rows        int
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(r, row[:])
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("read image: %w", err)
		}
		for i := n; i < len(row); i++ {
			row[i] = 0xFF
		}

		if !blankRow(row[:]) {
			if err := p.writeRow(wordAddress, row[:]); err != nil {
				return err
			}
			if wordAddress%protocol.ProgressStep == 0 {
				p.report(fmt.Sprintf("Writing addr: 0x%x", wordAddress))
			}
			if err := sleep(ctx, p.cfg.Delays.Row); err != nil {
				return err
			}
		} else {
			p.logDebug("skipping blank row", "address", fmt.Sprintf("0x%08X", protocol.RowAddress(wordAddress)))
		}

		wordAddress += protocol.RowWords
		rows++
		if p.cfg.Progress != nil {
			p.cfg.Progress(rows, total)
		}

		if n < len(row) {
			break
		}
	}
	p.logInfo("image written", "rows", rows, "words", wordAddress)
	return nil
}

func (p *Programmer) writeRow(wordAddress uint32, row []byte) error {
	for _, f := range protocol.WriteUserBuffer(0, row) {
		if err := p.command(f); err != nil {
			return fmt.Errorf("write buffer at word 0x%x: %w", wordAddress, err)
		}
	}
	addr := protocol.RowAddress(wordAddress)
	if err := p.command(protocol.WriteFlashRow(addr)); err != nil {
		return fmt.Errorf("commit row 0x%08X: %w", addr, err)
	}
	return nil
}

func (p *Programmer) finalize(ctx context.Context) error {
	if _, err := p.bus.Transfer(protocol.ApplyFlash()); err != nil {
		p.logWarn("apply", "error", err)
	}
	if err := sleep(ctx, p.cfg.Delays.Apply); err != nil {
		return err
	}
	if err := p.bus.HardReset(); err != nil {
		p.logWarn("hard reset failed", "error", err)
	}
	if err := sleep(ctx, p.cfg.Delays.Reset); err != nil {
		return err
	}

	v, err := p.queryVersion()
	if err != nil {
		p.logWarn("application did not answer after reset", "error", err)
		return nil
	}
	p.logInfo("application running", "version", v.String())
	return nil
}

func (p *Programmer) queryVersion() (protocol.Version, error) {
	rx, err := p.bus.Transfer(protocol.QueryVersion())
	if err != nil {
		return protocol.Version{}, err
	}
	return protocol.ParseVersion(rx)
}

// command sends tx and fails on a transport error or an error reply.
func (p *Programmer) command(tx protocol.Frame) error {
	rx, err := p.bus.Transfer(tx)
	if err != nil {
		return err
	}
	return protocol.CheckReply(tx, rx)
}

func blankRow(row []byte) bool {
	for i := 0; i+4 <= len(row); i += 4 {
		if binary.LittleEndian.Uint32(row[i:]) != protocol.BlankWord {
			return false
		}
	}
	return true
}

func (p *Programmer) report(line string) {
	fmt.Fprintln(p.cfg.Report, line)
}

func (p *Programmer) logDebug(msg string, args ...interface{}) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug(msg, args...)
	}
}

func (p *Programmer) logInfo(msg string, args ...interface{}) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Info(msg, args...)
	}
}

func (p *Programmer) logWarn(msg string, args ...interface{}) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Warn(msg, args...)
	}
}

func (p *Programmer) logError(msg string, args ...interface{}) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Error(msg, args...)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
