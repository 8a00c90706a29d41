// The main package for the fetchwright executable.
package main

import (
	"github.com/fetchwright/fetchwright/cmd"
)

func main() {
	cmd.Execute()
}
