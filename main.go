package main

import "github.com/hfxdb/hfx/cmd"

func main() {
	cmd.Execute()
}
