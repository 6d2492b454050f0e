package main

import "github.com/voltigdev/voltig-turbo/cmd/voltig-turbo/cmd"

func main() {
	cmd.Execute()
}
