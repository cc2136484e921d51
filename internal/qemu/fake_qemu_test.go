// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
)

const helperEnv = "OTTER_TEST_FAKE_QEMU"

const argsFileName = "args"

// serveQMP answers QMP commands on conn until it is closed or quit is
// received. In mode "nostatus" the status query fails.
func serveQMP(conn io.ReadWriter, mode string, onQuit func()) error {
	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)

	greeting := map[string]any{
		"QMP": map[string]any{
			"version": map[string]any{
				"qemu": map[string]int{"major": 9, "minor": 2, "micro": 1},
			},
			"capabilities": []string{"oob"},
		},
	}
	if err := enc.Encode(greeting); err != nil {
		return err
	}

	for {
		var cmd struct {
			Execute   string         `json:"execute"`
			Arguments map[string]any `json:"arguments"`
		}

		if err := dec.Decode(&cmd); err != nil {
			return err
		}

		var resp any

		switch cmd.Execute {
		case "qmp_capabilities":
			resp = map[string]any{"return": map[string]any{}}
		case "query-status":
			if mode == "nostatus" {
				resp = map[string]any{"error": map[string]string{
					"class": "GenericError",
					"desc":  "status not available",
				}}

				break
			}

			event := map[string]any{"event": "RESUME", "timestamp": map[string]int{}}
			if err := enc.Encode(event); err != nil {
				return err
			}

			resp = map[string]any{"return": map[string]any{
				"status":  "running",
				"running": true,
			}}
		case "human-monitor-command":
			output := ""
			if line, _ := cmd.Arguments["command-line"].(string); line == "loadvm missing" {
				output = "Error: Snapshot 'missing' does not exist\r\n"
			}

			resp = map[string]any{"return": output}
		case "quit":
			if err := enc.Encode(map[string]any{"return": map[string]any{}}); err != nil {
				return err
			}

			onQuit()

			return nil
		default:
			resp = map[string]any{"error": map[string]string{
				"class": "CommandNotFound",
				"desc":  "The command " + cmd.Execute + " has not been found",
			}}
		}

		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
}

// argValue returns the value following the first occurrence of name.
func argValue(args []string, name string) string {
	for idx, arg := range args[:len(args)-1] {
		if arg == name {
			return args[idx+1]
		}
	}

	return ""
}

func socketPath(value string) string {
	for opt := range strings.SplitSeq(value, ",") {
		if path, found := strings.CutPrefix(opt, "path="); found {
			return path
		}

		if path, found := strings.CutPrefix(opt, "unix:"); found {
			return path
		}
	}

	return ""
}

func listenUnix(path string) (net.Listener, error) {
	_ = os.Remove(path)
	return net.Listen("unix", path)
}

// fakeQEMU serves QMP on the socket given by "-qmp". The mode "crash" exits
// right away, the mode "stubborn" ignores the quit command. The mode
// "nostatus" fails the status query.
func fakeQEMU(mode string) int {
	fmt.Fprintln(os.Stderr, "qemu-system-x86_64: warning: host doesn't support requested feature")

	if mode == "crash" {
		fmt.Fprintln(os.Stderr, "qemu-system-x86_64: Could not open 'disk.qcow2'")
		return 1
	}

	args := os.Args[1:]
	if len(args) == 0 {
		return 2
	}

	qmpPath := socketPath(argValue(args, "-qmp"))
	runtimeDir := filepath.Dir(qmpPath)

	argsFile := filepath.Join(runtimeDir, argsFileName)
	if err := os.WriteFile(argsFile, []byte(strings.Join(args, "\n")), 0o600); err != nil {
		return 3
	}

	for _, path := range []string{
		socketPath(argValue(args, "-chardev")),
		socketPath(argValue(args, "-vnc")),
	} {
		listener, err := listenUnix(path)
		if err != nil {
			return 4
		}
		defer listener.Close()
	}

	listener, err := listenUnix(qmpPath)
	if err != nil {
		return 5
	}
	defer listener.Close()

	onQuit := func() {
		if mode != "stubborn" {
			os.Exit(0)
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			return 6
		}

		_ = serveQMP(conn, mode, onQuit)
		_ = conn.Close()
	}
}
