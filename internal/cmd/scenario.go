// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"

	"github.com/aibor/otter/internal/scenario/qubes"
	"github.com/aibor/otter/internal/session"
)

const defaultScenario = "qubes"

type scenario struct {
	run      func(ctx context.Context, s *session.Session, creds session.Credentials) error
	needsOCR bool
}

var scenarios = map[string]scenario{
	"qubes": {
		run: func(ctx context.Context, s *session.Session, creds session.Credentials) error {
			return qubes.Run(ctx, s, creds)
		},
		needsOCR: true,
	},
	// Provision and attach only.
	"none": {
		run: func(context.Context, *session.Session, session.Credentials) error {
			return nil
		},
	},
}
