// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tunnel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const tcpStateListen = "0A"

var procNetFiles = []string{"tcp", "tcp6"}

// listening reports if any socket in the given proc net directory listens on
// port.
func listening(procNetDir string, port int) (bool, error) {
	var found int

	for _, name := range procNetFiles {
		file, err := os.Open(filepath.Join(procNetDir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return false, fmt.Errorf("open socket table: %w", err)
		}

		found++

		ok, err := scanListening(file, port)
		_ = file.Close()

		if err != nil || ok {
			return ok, err
		}
	}

	if found == 0 {
		return false, fmt.Errorf("socket table in %s: %w", procNetDir, fs.ErrNotExist)
	}

	return false, nil
}

// scanListening parses a /proc/net/tcp style table. Columns are slot, local
// address as hex "ADDR:PORT", remote address and state.
func scanListening(r io.Reader, port int) (bool, error) {
	scanner := bufio.NewScanner(r)

	// Skip header.
	scanner.Scan()

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[3] != tcpStateListen {
			continue
		}

		_, hexPort, ok := strings.Cut(fields[1], ":")
		if !ok {
			continue
		}

		p, err := strconv.ParseUint(hexPort, 16, 16)
		if err == nil && int(p) == port {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("read socket table: %w", err)
	}

	return false, nil
}

func procNetAvailable(procNetDir string) bool {
	_, err := os.Stat(filepath.Join(procNetDir, procNetFiles[0]))
	return err == nil
}
