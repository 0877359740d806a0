/*
 * Copyright (C) 2021 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package test holds helpers shared by the package tests, mainly stand-ins
// for the external graphing engine.
package test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vladimirvivien/gexe"
)

// WriteScript drops an executable shell script into a fresh temp directory
// and returns its path.
func WriteScript(t *testing.T, body string) string {
	t.Helper()
	fileName := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(fileName, []byte(body), 0o755))
	return fileName
}

// FakeEngine writes an engine stand-in that ignores its arguments and
// prints the image summary header followed by the given data lines.
func FakeEngine(t *testing.T, lines ...string) string {
	t.Helper()
	script := "#!/bin/sh\necho \"496x140\"\n"
	for _, line := range lines {
		script += fmt.Sprintf("echo %q\n", line)
	}
	return WriteScript(t, script)
}

// RunCommand runs a command line and returns its trimmed output.
func RunCommand(command string) string {
	p := gexe.RunProc(command)
	if p.Err() != nil {
		fmt.Printf("error in running command: %v \n", p.Err())
	}
	output := p.Result()
	fmt.Printf("output = %s\n", output)
	return output
}
