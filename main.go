package main

import "github.com/tribalfarm/tfarm/cmd"

func main() {
	cmd.Execute()
}
