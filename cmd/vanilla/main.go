package main

import "github.com/pseudocodes/lite-vanilla/cli"

func main() {
	cli.Execute()
}
