package main

import "github.com/viktsys/twmarket/cmd"

func main() {
	cmd.Execute()
}
