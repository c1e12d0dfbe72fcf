package main

import "github.com/LeJamon/goVaultd/internal/cli"

func main() {
	cli.Execute()
}
