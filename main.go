/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/mkleene/chime/cmd"

func main() {
	cmd.Execute()
}
