// Package main is the entry of the netsim command.
package main

import "github.com/sarchlab/netsim/netsim/cmd"

func main() {
	cmd.Execute()
}
