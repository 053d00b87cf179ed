package main

import "github.com/Gandorini/S-T-Station/cmd"

func main() {
	cmd.Execute()
}
