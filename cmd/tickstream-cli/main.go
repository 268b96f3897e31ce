package main

import "github.com/nfrund/tickstream/cmd/tickstream-cli/cmd"

func main() {
	cmd.Execute()
}
