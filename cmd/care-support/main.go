package main

import "github.com/aquarius1905/care-support/cmd/care-support/commands"

func main() {
	commands.Execute()
}
