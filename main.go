package main

import (
	"github.com/guestkiosk/guestkiosk/cmd"
)

func main() {
	cmd.Execute()
}
