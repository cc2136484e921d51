// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest summarizes a finished session. It is written to [ManifestName] in
// the output directory.
type Manifest struct {
	ID             string    `yaml:"id"`
	Machine        string    `yaml:"machine"`
	Snapshot       string    `yaml:"snapshot"`
	Started        time.Time `yaml:"started,omitempty"`
	Stopped        time.Time `yaml:"stopped"`
	State          string    `yaml:"state"`
	Frames         int       `yaml:"frames"`
	ConsoleBytes   int       `yaml:"console_bytes"`
	TunnelPorts    []int     `yaml:"tunnel_ports,omitempty"`
	AttachErrors   []string  `yaml:"attach_errors,omitempty"`
	TeardownErrors []string  `yaml:"teardown_errors,omitempty"`
}

// ReadManifest reads the manifest file at path.
func ReadManifest(path string) (Manifest, error) {
	var manifest Manifest

	data, err := os.ReadFile(path)
	if err != nil {
		return manifest, fmt.Errorf("read manifest: %w", err)
	}

	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("parse manifest: %w", err)
	}

	return manifest, nil
}

// writeManifest persists the manifest. State is the state reached before
// teardown.
func (s *Session) writeManifest(state State, teardownErrs []error) error {
	s.mu.Lock()
	manifest := Manifest{
		ID:             s.id,
		Machine:        s.machine.Name(),
		Snapshot:       s.cfg.Snapshot,
		Started:        s.started,
		Stopped:        s.stopped,
		State:          state.String(),
		Frames:         s.screen.Frames(),
		ConsoleBytes:   len(s.console.Log()),
		TunnelPorts:    append([]int(nil), s.tunnelPorts...),
		AttachErrors:   errorStrings(s.attachErrs),
		TeardownErrors: errorStrings(teardownErrs),
	}
	s.mu.Unlock()

	path := filepath.Join(s.cfg.OutputDir, ManifestName)

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return &PersistenceError{Path: path, Err: err}
	}

	return nil
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}

	strs := make([]string, 0, len(errs))
	for _, err := range errs {
		strs = append(strs, err.Error())
	}

	return strs
}
