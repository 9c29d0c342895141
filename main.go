package main

import "github.com/atomicobject/fsminer/cmd"

func main() {
	cmd.Execute()
}
