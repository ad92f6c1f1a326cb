// This program is the command line front end for a powchain node.
package main

import "github.com/ardanlabs/powchain/app/tooling/cli/cmd"

func main() {
	cmd.Execute()
}
