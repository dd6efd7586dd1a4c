package main

import (
	"os"

	luminacmder "github.com/papercomputeco/lumina/cmd/lumina"
)

func main() {
	cmd := luminacmder.NewLuminaCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
