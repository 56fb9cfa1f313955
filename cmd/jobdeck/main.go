package main

import "github.com/jobdeck/jobdeck/cmd/jobdeck/cmd"

func main() {
	cmd.Execute()
}
