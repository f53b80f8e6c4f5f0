package main

import "github.com/resurrectci/resurrectci/internal/cmd"

func main() {
	cmd.Execute()
}
