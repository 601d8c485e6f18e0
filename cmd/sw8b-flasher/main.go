package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/bigbag/sw8b-flasher/internal/config"
	"github.com/bigbag/sw8b-flasher/internal/pagestore"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfg    = config.Default()
	logger hclog.Logger
)

func main() {
	if err := cfg.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "sw8b-flasher",
		Short: "Convert and flash firmware for Serial Wombat 8B devices",
		Long: `SW8B Flasher converts Intel HEX firmware for the Serial Wombat 8B
(CH32V003) into its 16 KiB flash image and programs it through the
Wombat bootloader over I2C or a serial link. It can also scan the bus,
change the device address, reset the device and set pin modes.

Settings can also be given as SW8B_* environment variables,
for example SW8B_TRANSPORT=serial or SW8B_ADDRESS=0x6C.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			level := hclog.LevelFromString(cfg.LogLevel)
			if level == hclog.NoLevel {
				return fmt.Errorf("unknown log level %q", cfg.LogLevel)
			}
			logger = hclog.New(&hclog.LoggerOptions{
				Name:   "sw8b-flasher",
				Level:  level,
				Output: os.Stderr,
			})
			return nil
		},
	}
	cfg.BindFlags(rootCmd.PersistentFlags())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sw8b-flasher %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(
		newConvertCmd(),
		newBinCmd(),
		newCRCCmd(),
		newDumpCmd(),
		newFlashCmd(),
		newInfoCmd(),
		newScanCmd(),
		newAddressCmd(),
		newResetCmd(),
		newPinCmd(),
		newListCmd(),
		versionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the page store selected by the configuration.
func openStore() (*pagestore.Store, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		return pagestore.BeginBadger(filepath.Join(cfg.CacheDir, "badger"))
	case config.BackendMemory:
		return pagestore.NewMem(), nil
	default:
		return pagestore.Begin(cfg.CacheDir)
	}
}
