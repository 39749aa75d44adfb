package main

import "github.com/vietddude/rpcmon/internal/cli"

func main() {
	cli.Execute()
}
