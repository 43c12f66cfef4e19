package main

import "libraryapi/cmd/libraryctl/commands"

func main() {
	commands.Execute()
}
