package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/disykonect/internal/config"
	"github.com/jmylchreest/disykonect/internal/connectivity"
	"github.com/jmylchreest/disykonect/internal/device"
)

var probeOpts struct {
	all bool
}

// probeReport is the one-shot view of both probes.
type probeReport struct {
	Device  deviceReport  `yaml:"device"`
	Network networkReport `yaml:"network"`
	Alert   bool          `yaml:"alert_condition"`
}

type deviceReport struct {
	Present  bool            `yaml:"present"`
	Match    []string        `yaml:"match,omitempty"`
	IDs      []device.USBID  `yaml:"ids,omitempty"`
	Matching []device.Device `yaml:"matching,omitempty"`
	Devices  []device.Device `yaml:"devices,omitempty"`
	Error    string          `yaml:"error,omitempty"`
}

type networkReport struct {
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
	Usable  bool   `yaml:"usable"`
	Error   string `yaml:"error,omitempty"`
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Poll the security key and network once and print a YAML report",
	Long: `Poll both probes once using the configured matcher and backend, and
print what was found. Use --all to list every enumerated USB device, which
helps when choosing match strings or ids.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().BoolVar(&probeOpts.all, "all", false,
		"List all enumerated USB devices")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDaemonConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report := buildProbeReport(ctx, cfg, probeOpts.all)

	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return encoder.Close()
}

func buildProbeReport(ctx context.Context, cfg *config.DaemonConfig, all bool) probeReport {
	var r probeReport

	prober := device.NewSysfsProber(cfg.Device.SysfsRoot, cfg.Matcher(), logger)
	r.Device.Match = cfg.Device.Match
	r.Device.IDs = cfg.Device.IDs
	if matching, err := prober.Matching(ctx); err != nil {
		r.Device.Error = err.Error()
	} else {
		r.Device.Matching = matching
		r.Device.Present = len(matching) > 0
	}
	if all {
		if devices, err := prober.Devices(ctx); err == nil {
			r.Device.Devices = devices
		}
	}

	r.Network.Backend = cfg.Network.Backend
	network, err := connectivity.New(cfg.Network.Backend, logger)
	if err != nil {
		r.Network.Error = err.Error()
		return r
	}
	level, err := network.Level(ctx)
	r.Network.Level = level.String()
	if err != nil {
		r.Network.Error = err.Error()
	} else {
		r.Network.Usable = level.Usable()
	}

	r.Alert = r.Device.Present && r.Network.Usable
	return r
}
