// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/weld/cmd/weld"

func main() {
	cmd.Execute()
}
