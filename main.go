// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/massimahiou/mapies-sub001/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
