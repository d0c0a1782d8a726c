package main

import "github.com/martinbojnansky/flashback/internal/cli"

func main() {
	cli.Main()
}
