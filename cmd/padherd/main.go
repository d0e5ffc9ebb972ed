package main

import "github.com/MrSnakeDoc/padherd/cmd/padherd/cmd"

func main() {
	cmd.Execute()
}
