package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/capture"
	"github.com/fyrsmithlabs/voxnotes/internal/config"
	"github.com/fyrsmithlabs/voxnotes/internal/monitor"
)

func newRecordCmd(g *globalFlags) *cobra.Command {
	var noTranscribe bool
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice note from the microphone",
		Long: `Record a voice note. Press enter to stop, esc to cancel.

Live transcription uses the speech recognizer listening on
capture.speech_socket. With --no-transcribe only the audio is kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			events := monitor.NewEvents()
			rec, err := newRecorder(a.cfg, a.logger, events, !noTranscribe)
			if err != nil {
				return err
			}

			m := monitor.NewModel(monitor.FromRecorder(rec), a.reg.Notes(), events)
			final, err := tea.NewProgram(m, tea.WithContext(cmd.Context()), tea.WithOutput(os.Stderr)).Run()
			if err != nil {
				return fmt.Errorf("recording screen: %w", err)
			}

			result, ok := final.(monitor.Model)
			if !ok {
				return errors.New("unexpected program state")
			}
			out, err := result.Outcome()
			if err != nil {
				return userError(a.logger, err)
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noTranscribe, "no-transcribe", false, "record audio without live transcription")
	return cmd
}

func newRecorder(cfg *config.Config, logger *zap.Logger, events *monitor.Events, transcribe bool) (*capture.Recorder, error) {
	audioDir, err := config.ExpandPath(cfg.Capture.AudioDir)
	if err != nil {
		return nil, fmt.Errorf("audio dir: %w", err)
	}
	rate := cfg.Capture.SampleRate
	captureLog := logger.Named("capture")

	newMic := func() (capture.Microphone, error) {
		return &capture.WAVMicrophone{
			Dir:        audioDir,
			SampleRate: rate,
			Source:     capture.NewMalgoSource(rate, captureLog),
			OnLevel:    events.Level,
		}, nil
	}

	var newSpeech func() capture.SpeechBackend
	if transcribe {
		newSpeech = func() capture.SpeechBackend {
			return capture.NewSocketSpeechBackend(cfg.Capture.SpeechSocket, captureLog)
		}
	}

	opts := capture.Options{
		Transcribe:      transcribe,
		Lang:            cfg.Capture.Lang,
		FinalizeTimeout: cfg.Capture.FinalizeTimeout.Duration(),
		OnInterim:       events.Interim,
	}
	return capture.NewRecorder(newMic, newSpeech, opts,
		capture.WithLogger(captureLog),
		capture.WithMetrics(capture.NewMetrics(captureLog))), nil
}
