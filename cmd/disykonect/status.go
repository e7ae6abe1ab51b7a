package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/disykonect/internal/dbus"
)

var statusOpts struct {
	follow bool
}

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text    string `json:"text"`
	Alt     string `json:"alt,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
	Class   string `json:"class,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Output Waybar-compatible JSON status",
	Long: `Query the running daemon over the session bus and print its state in
Waybar's custom module JSON format.

  "custom/disykonect": {
    "exec": "disykonect status --follow",
    "return-type": "json"
  }

The alt and class fields are one of: alert, key, network, clear, offline.
With --follow a new line is printed for every state change.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&statusOpts.follow, "follow", "f", false,
		"Keep running and print every state change")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	queryCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	st, err := dbus.QueryStatus(queryCtx, nil)
	cancel()
	if err != nil {
		logger.Debug("status query failed", "error", err)
		if err := outputStatus(out, offlineStatus()); err != nil {
			return err
		}
	} else if err := outputStatus(out, generateStatus(st)); err != nil {
		return err
	}

	if !statusOpts.follow {
		return nil
	}
	return followStatus(out)
}

// followStatus prints a line for every StateChanged signal until interrupted.
func followStatus(out io.Writer) error {
	ctx, stop := signalContext()
	defer stop()

	updates := make(chan WaybarStatus, 16)
	sub := dbus.NewSubscriber(dbus.SessionBus, logger, dbus.StatusStateChanged)
	sub.SetSignalHandler(func(sig *godbus.Signal) {
		st, err := dbus.ParseStateChanged(sig)
		if err != nil {
			logger.Debug("ignoring malformed StateChanged", "error", err)
			return
		}
		send(ctx, updates, generateStatus(st))
	})
	sub.SetDropHandler(func(err error) {
		send(ctx, updates, offlineStatus())
	})
	if err := sub.Start(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to status changes: %w", err)
	}
	defer sub.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ws := <-updates:
			if err := outputStatus(out, ws); err != nil {
				return err
			}
		}
	}
}

func send(ctx context.Context, updates chan<- WaybarStatus, ws WaybarStatus) {
	select {
	case updates <- ws:
	case <-ctx.Done():
	}
}

// generateStatus maps a daemon status to Waybar output.
func generateStatus(st dbus.Status) WaybarStatus {
	switch {
	case st.Alerting || (st.KeyPresent && st.NetworkPresent):
		return WaybarStatus{
			Text:    "!",
			Alt:     "alert",
			Tooltip: "Security key and network both connected\nDisconnect one of them",
			Class:   "alert",
		}
	case st.KeyPresent:
		return WaybarStatus{
			Text:    "key",
			Alt:     "key",
			Tooltip: "Security key connected\nNetwork disconnected",
			Class:   "key",
		}
	case st.NetworkPresent:
		return WaybarStatus{
			Text:    "net",
			Alt:     "network",
			Tooltip: "Network connected\nSecurity key not present",
			Class:   "network",
		}
	default:
		return WaybarStatus{
			Text:    "",
			Alt:     "clear",
			Tooltip: "Security key not present\nNetwork disconnected",
			Class:   "clear",
		}
	}
}

// offlineStatus is shown when the daemon is not reachable.
func offlineStatus() WaybarStatus {
	return WaybarStatus{
		Text:    "",
		Alt:     "offline",
		Tooltip: "disykonect is not running",
		Class:   "offline",
	}
}

// outputStatus writes the status as JSON.
func outputStatus(w io.Writer, status WaybarStatus) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(status)
}
