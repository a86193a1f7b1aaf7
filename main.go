package main

import "github.com/derickschaefer/ratecal/cmd"

func main() {
	cmd.Execute()
}
