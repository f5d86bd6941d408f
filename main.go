package main

import (
	"github.com/duke-gcb/ddsclient/cmd"
	"github.com/duke-gcb/ddsclient/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
