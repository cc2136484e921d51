// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

// State is the lifecycle state of a [Session].
type State int

// Session states in lifecycle order. [StateLoggingIn] is a sub-state of
// [StateReady].
const (
	StateCreated State = iota
	StateProvisioning
	StateConnecting
	StateReady
	StateLoggingIn
	StateClosed
)

var stateNames = [...]string{
	StateCreated:      "created",
	StateProvisioning: "provisioning",
	StateConnecting:   "connecting",
	StateReady:        "ready",
	StateLoggingIn:    "logging-in",
	StateClosed:       "closed",
}

// String implements [fmt.Stringer].
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}

	return stateNames[s]
}
