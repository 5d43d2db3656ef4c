package main

import "github.com/cppla/vibemusic/cmd"

func main() {
	cmd.Execute()
}
