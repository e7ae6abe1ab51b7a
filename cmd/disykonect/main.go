// Package main provides the disykonect daemon and its helper commands.
package main

func main() {
	Execute()
}
