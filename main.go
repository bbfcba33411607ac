package main

import "oneclick/cmd"

func main() {
	cmd.Execute()
}
