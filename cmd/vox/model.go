package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voxnotes/internal/monitor"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
)

func newModelCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage the on-device extraction model",
		Long: `Manage the on-device extraction model.

Examples:
  # Download and verify the model
  vox model init

  # Show whether the model is on disk
  vox model status

  # Delete the model so the next init downloads it again
  vox model reset`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Download and verify the model",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := g.open()
				if err != nil {
					return err
				}
				defer a.Close()
				if err := initModel(cmd.Context(), a.reg.Model(), cmd.ErrOrStderr()); err != nil {
					return userError(a.logger, err)
				}
				return printModelStatus(cmd.OutOrStdout(), g, a.reg.Model())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show model status",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := g.open()
				if err != nil {
					return err
				}
				defer a.Close()
				return printModelStatus(cmd.OutOrStdout(), g, a.reg.Model())
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Delete the downloaded model",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := g.open()
				if err != nil {
					return err
				}
				defer a.Close()
				if err := a.reg.Model().Reset(); err != nil {
					return userError(a.logger, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Model removed.")
				return nil
			},
		},
	)
	return cmd
}

// initModel runs Initialize while printing download progress to w.
func initModel(ctx context.Context, model *ondevice.Service, w io.Writer) error {
	done := make(chan error, 1)
	go func() { done <- model.Initialize(ctx) }()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			fmt.Fprintln(w)
			return err
		case <-ticker.C:
			st := model.Status()
			fmt.Fprintf(w, "\rDownloading model... %s", monitor.FormatPercentage(st.DownloadProgress))
		}
	}
}

func printModelStatus(w io.Writer, g *globalFlags, model *ondevice.Service) error {
	st := model.Status()
	path := model.Path()
	_, err := os.Stat(path)
	onDisk := err == nil
	if g.jsonOut {
		return writeJSON(w, struct {
			ondevice.Status
			Path       string `json:"path"`
			Downloaded bool   `json:"downloaded"`
		}{st, path, onDisk})
	}

	state := "not initialized"
	switch {
	case st.Ready:
		state = "ready"
	case st.Initializing:
		state = "initializing (" + monitor.FormatPercentage(st.DownloadProgress) + ")"
	case st.Error != "":
		state = "failed: " + st.Error
	}
	fmt.Fprintf(w, "State:      %s\n", state)
	fmt.Fprintf(w, "Model:      %s\n", path)
	fmt.Fprintf(w, "Downloaded: %t\n", onDisk)
	return nil
}
