package main

import "github.com/printshop/backend/cmd/syncctl/cmd"

func main() {
	cmd.Execute()
}
