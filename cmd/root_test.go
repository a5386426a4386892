// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCmd_RegistersSubcommands(t *testing.T) {
	root := BuildCmd("test")

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["trace"])
	assert.True(t, names["ping"])
}

func TestNewCmdTrace_RequiresExactlyOneArg(t *testing.T) {
	cmd := NewCmdTrace()
	assert.Error(t, cmd.Args(cmd, []string{}))
	assert.Error(t, cmd.Args(cmd, []string{"a", "b"}))
	assert.NoError(t, cmd.Args(cmd, []string{"example.test"}))
}

func TestNewCmdPing_RequiresExactlyOneArg(t *testing.T) {
	cmd := NewCmdPing()
	assert.Error(t, cmd.Args(cmd, []string{}))
	assert.NoError(t, cmd.Args(cmd, []string{"example.test"}))
}
