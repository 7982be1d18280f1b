package main

import "github.com/Ananth-NQI/kb-request-bot/cmd"

func main() {
	cmd.Execute()
}
