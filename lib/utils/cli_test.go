/*
Copyright 2025 The Fedlet Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package utils

import (
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"
)

func TestUserMessageFromError(t *testing.T) {
	t.Parallel()

	err := trace.Wrap(trace.BadParameter("bad thing occurred"))
	message := UserMessageFromError(err)
	require.Contains(t, message, "ERROR: ")
	require.Contains(t, message, "bad thing occurred")
	require.NotContains(t, message, "trace.go")
}

func TestInitCLIParser(t *testing.T) {
	t.Parallel()

	app := InitCLIParser("fedletctl", "test help")
	cmd := app.Command("noop", "No operation.")
	selected, err := app.Parse([]string{"noop"})
	require.NoError(t, err)
	require.Equal(t, cmd.FullCommand(), selected)
}
