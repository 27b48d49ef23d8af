package main

import (
	"github.com/pilab-dev/shadow-token/cmd/tokenctl/cmd"
)

func main() {
	cmd.Execute()
}
