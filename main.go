package main

import "scjingle/cmd"

func main() {
	cmd.Execute()
}
