package main

import "github.com/vietddude/docsync/internal/cli"

func main() {
	cli.Execute()
}
