package main

import (
	"dealfx/internal/cli"
)

func main() {
	cli.Execute()
}
