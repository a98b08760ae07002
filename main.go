package main

import "github.com/certmate/certmate/cmd"

func main() {
	cmd.Execute()
}
