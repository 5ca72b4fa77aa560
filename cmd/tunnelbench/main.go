package main

import "github.com/vpnlab/tunnelbench/internal/cli"

func main() {
	cli.Execute()
}
