// Package main provides the coverage command.
//
// Usage:
//
//	coverage run -c experiment.yaml
//	coverage serve
//	coverage remote create --start
//
// See --help for all available options.
package main

func main() {
	Execute()
}
