package main

import "github.com/shono-io/funcship/cmd"

func main() {
	cmd.Execute()
}
