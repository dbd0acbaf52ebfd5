// Package main is the entry point for nodecfg.
package main

func main() {
	Execute()
}
