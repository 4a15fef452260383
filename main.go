package main

import "kcidb/cmd"

func main() {
	cmd.Execute()
}
