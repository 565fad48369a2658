package main

import "github.com/flashkv/flashkv/cmd/flashkv/cmd"

func main() {
	cmd.Execute()
}
