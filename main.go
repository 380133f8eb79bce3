package main

import "github.com/resqd/resq/cmd"

func main() {
	cmd.Execute()
}
