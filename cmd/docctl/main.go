// Package main provides the docctl admin CLI.
package main

import "coursedocs-backend/internal/cli"

func main() {
	cli.Execute()
}
