package main

import "openusage.dev/openusage/cmd"

func main() {
	cmd.Execute()
}
