package main

import (
	"github.com/loretree/loretree/internal/cli"
)

func main() {
	cli.Execute()
}
