package main

import "github.com/ion-sh/ion/cmd"

func main() {
	cmd.Execute()
}
