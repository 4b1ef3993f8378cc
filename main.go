package main

import "github.com/BioHazard786/Warptalk/cmd"

func main() {
	cmd.Execute()
}
