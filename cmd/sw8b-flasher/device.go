package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/sw8b-flasher/internal/bus"
	"github.com/bigbag/sw8b-flasher/internal/config"
	"github.com/bigbag/sw8b-flasher/internal/control"
	"github.com/bigbag/sw8b-flasher/internal/detect"
	"github.com/bigbag/sw8b-flasher/internal/flasher"
	"github.com/bigbag/sw8b-flasher/internal/image"
	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

// busLock serializes multi-frame transactions within this process. Other
// processes are kept out by the exclusive open of the bus device.
var busLock = bus.NewLock()

func newFlashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flash <firmware.bin|firmware.hex>",
		Short: "Flash firmware to device",
		Long: `Flash firmware to a Serial Wombat 8B through its bootloader.

A .hex file is converted to the strict 16 KiB image first; any other file
is streamed as a raw binary. Blank rows (all 0xFF) are skipped. There is no
read-back verification: if flashing fails the device must be reflashed.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
}

func runFlash(cmd *cobra.Command, args []string) error {
	firmwarePath := args[0]

	firmware, err := readFirmware(firmwarePath)
	if err != nil {
		return err
	}
	fmt.Printf("Flashing: %s (%d bytes)\n", firmwarePath, len(firmware))

	dev, err := openBus()
	if err != nil {
		return err
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	totalRows := (len(firmware) + protocol.RowSize - 1) / protocol.RowSize
	bar := progressbar.NewOptions(totalRows,
		progressbar.OptionSetDescription("Flashing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	p := flasher.New(dev,
		flasher.WithLock(busLock),
		flasher.WithLogger(logger.Named("flasher")),
		flasher.WithReport(progressWriter{bar}),
		flasher.WithProgressCallback(func(current, total int) {
			bar.Set(current)
		}),
	)

	if err := p.Program(ctx, bytes.NewReader(firmware), int64(len(firmware))); err != nil {
		bar.Exit()
		fmt.Println()
		if p.State() == flasher.StateFailed {
			fmt.Println("Device is in an unknown state; flash it again from the start.")
		}
		return err
	}
	bar.Finish()
	fmt.Println("Done!")
	return nil
}

// progressWriter prints report lines above the progress bar.
type progressWriter struct {
	bar *progressbar.ProgressBar
}

func (w progressWriter) Write(p []byte) (int, error) {
	w.bar.Clear()
	return os.Stdout.Write(p)
}

func readFirmware(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".hex") {
		store, err := openStore()
		if err != nil {
			return nil, err
		}
		defer store.Close()

		res, err := image.ConvertFile(store, path, cfg.EnforceChecksum)
		if res != nil {
			printResult(res)
		}
		if err != nil {
			return nil, err
		}
		return res.Binary, nil
	}

	firmware, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware file: %w", err)
	}
	return firmware, nil
}

// openBus opens the transport selected by the configuration.
func openBus() (bus.Bus, error) {
	if cfg.Transport == config.TransportI2C {
		dev, err := bus.OpenI2C(cfg.I2CBus, cfg.Address)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Bus: /dev/i2c-%d @ 0x%02X\n", cfg.I2CBus, cfg.Address)
		return dev, nil
	}

	portName := cfg.Port
	if portName == "" {
		fmt.Println("Detecting device...")
		result, err := detect.DetectDevice(cfg.Baud)
		if err != nil {
			return nil, fmt.Errorf("device detection failed: %w", err)
		}
		portName = result.Port
		fmt.Printf("Found Wombat %s on %s\n", result.Version, result.Port)
	}

	port, err := bus.OpenSerial(portName, cfg.Baud)
	if err != nil {
		return nil, fmt.Errorf("failed to open port: %w", err)
	}
	fmt.Printf("Port: %s @ %d baud\n", portName, cfg.Baud)
	return port, nil
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device info",
		Long:  "Query the configured device, or every serial port with --transport serial.",
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	if cfg.Transport == config.TransportI2C || cfg.Port != "" {
		dev, err := openBus()
		if err != nil {
			return err
		}
		defer dev.Close()

		release, err := busLock.TryAcquire()
		if err != nil {
			return err
		}
		defer release()

		result, err := detect.Probe(dev)
		if err != nil {
			return fmt.Errorf("no Wombat answered: %w", err)
		}
		result.Port = cfg.Port
		printDeviceInfo(result)
		return nil
	}

	fmt.Println("Scanning serial ports for Wombats...")
	devices, err := detect.ListDevices(cfg.Baud)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No Wombat devices found")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("Device %d:\n", i+1)
		printDeviceInfo(&d)
		fmt.Println()
	}
	return nil
}

func printDeviceInfo(d *detect.Result) {
	if d.Port != "" {
		fmt.Printf("  Port:     %s\n", d.Port)
	} else {
		fmt.Printf("  Address:  0x%02X\n", d.Address)
	}
	fmt.Printf("  Version:  %s\n", d.Version)
	fmt.Printf("  Mode:     %s\n", d.Mode())
}

func newScanCmd() *cobra.Command {
	var first, last uint8

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the I2C bus for Wombats",
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := bus.OpenI2C(cfg.I2CBus, cfg.Address)
			if err != nil {
				return err
			}
			defer dev.Close()

			results, err := detect.Scan(cmd.Context(), dev, busLock, first, last)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No devices found.")
				return nil
			}
			for _, r := range results {
				fmt.Printf("Device Found: 0x%02x  %-8s %s\n", r.Address, r.Version, r.Mode())
			}
			fmt.Printf("\nTotal: %d\n", len(results))
			return nil
		},
	}
	cmd.Flags().Uint8Var(&first, "first", detect.FirstAddress, "First address to probe")
	cmd.Flags().Uint8Var(&last, "last", detect.LastAddress, "Last address to probe")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := bus.ListPorts()
			if err != nil {
				return err
			}

			if len(ports) == 0 {
				fmt.Println("No serial ports found")
				return nil
			}

			fmt.Println("Available serial ports:")
			for _, p := range ports {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}
}

func newAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address <new-address>",
		Short: "Change the device I2C address",
		Long: `Store a new I2C address (0x08-0x77) in the device and reset it so the
address takes effect. Subsequent commands need --address set to the new value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := config.ParseAddress(args[0])
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", args[0], err)
			}
			return withController(cmd.Context(), func(ctx context.Context, c *control.Controller) error {
				if err := c.ChangeAddress(ctx, addr); err != nil {
					return err
				}
				fmt.Printf("Address changed to 0x%02X\n", addr)
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd.Context(), func(ctx context.Context, c *control.Controller) error {
				if err := c.Reset(ctx); err != nil {
					return err
				}
				fmt.Println("Device reset")
				return nil
			})
		},
	}
}

func newPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <pin> <mode>",
		Short: "Set the mode of a device pin",
		Long:  "Configure a pin (0-7) for a pin mode number (0-40) with default parameters.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := strconv.ParseUint(args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid pin %q: %w", args[0], err)
			}
			mode, err := strconv.ParseUint(args[1], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid mode %q: %w", args[1], err)
			}
			return withController(cmd.Context(), func(ctx context.Context, c *control.Controller) error {
				if err := c.SetPinMode(ctx, uint8(pin), uint8(mode)); err != nil {
					return err
				}
				fmt.Printf("Pin %d set to mode %d\n", pin, mode)
				return nil
			})
		},
	}
}

// withController opens the configured bus and runs fn with a controller
// holding the bus lock.
func withController(ctx context.Context, fn func(context.Context, *control.Controller) error) error {
	dev, err := openBus()
	if err != nil {
		return err
	}
	defer dev.Close()

	return fn(ctx, control.New(dev, busLock))
}
