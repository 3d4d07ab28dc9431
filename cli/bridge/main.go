package main

import (
	"fmt"
	"os"

	bridgecmder "github.com/kgourjau/BridgeAI/cmd/bridge"
)

func main() {
	cmd := bridgecmder.NewBridgeCmd()

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
