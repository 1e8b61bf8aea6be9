package main

import "github.com/encodeous/opera/cmd"

func main() {
	cmd.Execute()
}
