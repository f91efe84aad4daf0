// Package main implements the hookrelay CLI.
package main

func main() {
	Execute()
}
