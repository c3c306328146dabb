package main

import "github.com/Lopezse/lopez-it-welt-sub001/internal/cli"

func main() {
	cli.Execute()
}
