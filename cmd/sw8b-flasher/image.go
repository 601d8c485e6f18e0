package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigbag/sw8b-flasher/internal/ihex"
	"github.com/bigbag/sw8b-flasher/internal/image"
	"github.com/bigbag/sw8b-flasher/internal/pagestore"
)

func newConvertCmd() *cobra.Command {
	var trailingComma, newline bool

	cmd := &cobra.Command{
		Use:   "convert <firmware.hex> <image.txt>",
		Short: "Convert Intel HEX to the word-literal image",
		Long: `Load an Intel HEX file and export the 16 KiB flash window as
comma separated little-endian words (0xXXXX). Every byte of the window
must be defined; the first missing address is reported.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, b, err := loadHex(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			err = image.NewExporter(store).ExportStrictFile(args[1], trailingComma, newline)
			printLoadReport(b)
			if err != nil {
				return fmt.Errorf("text export failed: %w", err)
			}
			fmt.Printf("Wrote %d words to %s\n", image.WordCount, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&trailingComma, "trailing-comma", false, "Append a comma after the last word")
	cmd.Flags().BoolVar(&newline, "newline", true, "End the output with a newline")
	return cmd
}

func newBinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bin <firmware.hex> <firmware.bin>",
		Short: "Convert Intel HEX to the raw 16 KiB binary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := image.WriteBinary(store, args[0], args[1], cfg.EnforceChecksum)
			if res != nil {
				printResult(res)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(res.Binary), args[1])
			return nil
		},
	}
}

func newCRCCmd() *cobra.Command {
	var (
		start, end uint32
		lenient    bool
		fill       uint8
	)

	cmd := &cobra.Command{
		Use:   "crc <firmware.hex>",
		Short: "Compute CRC-16/CCITT over an address range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if end <= start {
				return fmt.Errorf("empty range 0x%X-0x%X", start, end)
			}
			store, b, err := loadHex(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			crc, err := image.NewExporter(store).CheckedCRC(start, end, !lenient, fill)
			printLoadReport(b)
			if err != nil {
				return fmt.Errorf("range 0x%X-0x%X: %w", start, end, err)
			}
			fmt.Printf("CRC-16/CCITT [0x%04X, 0x%04X): 0x%04X\n", start, end, crc)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&start, "start", image.WindowStart, "First address")
	cmd.Flags().Uint32Var(&end, "end", image.WindowEnd, "End address (exclusive)")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "Substitute the fill value for missing bytes")
	cmd.Flags().Uint8Var(&fill, "fill", pagestore.Fill, "Fill value used with --lenient")
	return cmd
}

func newDumpCmd() *cobra.Command {
	var start, end uint32

	cmd := &cobra.Command{
		Use:   "dump <firmware.hex>",
		Short: "Print the defined bytes as normalized Intel HEX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, b, err := loadHex(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			if err := image.NewExporter(store).DumpHex(os.Stdout, start, end); err != nil {
				return err
			}
			printLoadReport(b)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&start, "start", image.WindowStart, "First address")
	cmd.Flags().Uint32Var(&end, "end", image.WindowEnd, "End address (exclusive)")
	return cmd
}

// loadHex clears the configured store and loads path into it.
func loadHex(path string) (*pagestore.Store, *ihex.Builder, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	if err := store.Clear(); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("clear cache: %w", err)
	}

	b := ihex.NewBuilder(store)
	if err := b.LoadFile(path, cfg.EnforceChecksum); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("HEX parse failed: %w", err)
	}
	logger.Debug("hex loaded", "file", path, "warnings", b.Warnings().Len(), "skipped", len(b.Diagnostics()))
	return store, b, nil
}

func printLoadReport(b *ihex.Builder) {
	for _, d := range b.Diagnostics() {
		logger.Warn("line skipped", "line", d.Line, "reason", d.Reason)
	}
	for _, w := range b.Warnings().Entries() {
		fmt.Println(w)
	}
	if b.HasBounds() {
		fmt.Printf("Address range: 0x%04X-0x%04X\n", b.MinAddress(), b.MaxAddress())
	}
}

func printResult(res *image.Result) {
	for _, d := range res.Diagnostics {
		logger.Warn("line skipped", "line", d.Line, "reason", d.Reason)
	}
	for _, w := range res.Warnings {
		fmt.Println(w)
	}
	if res.HasBounds {
		fmt.Printf("Address range: 0x%04X-0x%04X\n", res.MinAddress, res.MaxAddress)
	}
}
