package main

import (
	"go-modelcart/cmd/modelcart/cmd"
)

func main() {
	// Execute the root command (defined in cmd/root.go)
	cmd.Execute()
}
