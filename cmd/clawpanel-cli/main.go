package main

import "github.com/clawpanel/clawpanel/cmd/clawpanel-cli/cmd"

func main() {
	cmd.Execute()
}
