package main

import "onesh/cmd"

func main() {
	cmd.Execute()
}
