package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voxagent/internal/ipc"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	socket  string
	timeout time.Duration
	json    bool
}

func rootCmd() *cobra.Command {
	opt := &options{}

	root := &cobra.Command{
		Use:          "voxagent-ctl",
		Short:        "Control a running voxagent daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opt.socket, "socket", "s", envOr("VOXAGENT_SOCKET", ipc.DefaultSocketPath), "daemon control socket")
	root.PersistentFlags().DurationVarP(&opt.timeout, "timeout", "t", 0, "give up waiting for a reply after this long (0 = wait)")
	root.PersistentFlags().BoolVar(&opt.json, "json", false, "print the full reply as JSON")

	root.AddCommand(triggerCmd(opt))
	root.AddCommand(askCmd(opt))
	root.AddCommand(fileCmd(opt))
	return root
}

func triggerCmd(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Listen on the microphone and answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, opt, ipc.ControlMessage{Cmd: ipc.CmdTrigger})
		},
	}
}

func askCmd(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <text...>",
		Short: "Run a turn on typed text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, opt, ipc.ControlMessage{Cmd: ipc.CmdAsk, Text: strings.Join(args, " ")})
		},
	}
}

func fileCmd(opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "file <path>",
		Short: "Run a turn on an audio file (wav, mp3, ogg)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The daemon resolves paths against its own working directory.
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return send(cmd, opt, ipc.ControlMessage{Cmd: ipc.CmdFile, Path: path})
		},
	}
}

func send(cmd *cobra.Command, opt *options, msg ipc.ControlMessage) error {
	r, err := ipc.Send(opt.socket, msg, opt.timeout)
	if err != nil {
		return fmt.Errorf("voxagent-daemon not running: %w", err)
	}

	out := cmd.OutOrStdout()
	if opt.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return err
		}
	} else if r.OK {
		fmt.Fprintln(out, r.Text)
	}

	if !r.OK {
		return errors.New(r.Error)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
