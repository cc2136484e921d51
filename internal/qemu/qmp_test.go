// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/otter/internal/qemu"
)

func connectQMP(t *testing.T) *qemu.QMP {
	t.Helper()

	client, server := net.Pipe()
	served := make(chan struct{})

	go func() {
		defer close(served)
		_ = serveQMP(server, "run", func() {})
		_ = server.Close()
	}()

	t.Cleanup(func() {
		_ = client.Close()
		<-served
	})

	qmp, err := qemu.NewQMP(t.Context(), client, nil)
	require.NoError(t, err)

	return qmp
}

func TestQMPHandshake(t *testing.T) {
	qmp := connectQMP(t)

	assert.Equal(t, "9.2.1", qmp.Version().String())
}

func TestQMPStatusSkipsEvents(t *testing.T) {
	qmp := connectQMP(t)

	status, err := qmp.Status(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "running", status)
}

func TestQMPHumanMonitorCommand(t *testing.T) {
	qmp := connectQMP(t)

	output, err := qmp.HumanMonitorCommand(t.Context(), "loadvm missing")
	require.NoError(t, err)
	assert.Contains(t, output, "does not exist")

	output, err = qmp.HumanMonitorCommand(t.Context(), "loadvm kickstart")
	require.NoError(t, err)
	assert.Empty(t, output)
}

func TestQMPError(t *testing.T) {
	qmp := connectQMP(t)

	err := qmp.Execute(t.Context(), "frobnicate", nil, nil)

	var qmpErr *qemu.QMPError
	require.ErrorAs(t, err, &qmpErr)
	assert.Equal(t, "frobnicate", qmpErr.Command)
	assert.Equal(t, "CommandNotFound", qmpErr.Class)
}

func TestQMPQuit(t *testing.T) {
	qmp := connectQMP(t)

	require.NoError(t, qmp.Quit(t.Context()))
}

func TestQMPNoGreeting(t *testing.T) {
	client, server := net.Pipe()

	go func() {
		_, _ = server.Write([]byte(`{"return": {}}` + "\n"))
		_ = server.Close()
	}()

	_, err := qemu.NewQMP(t.Context(), client, nil)
	require.ErrorIs(t, err, &qemu.QMPError{})

	_ = client.Close()
}
