package main

import "github.com/kozaktomas/fieldprep/cmd"

func main() {
	cmd.Execute()
}
