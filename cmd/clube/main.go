package main

import "github.com/clubejota/clube/internal/cli"

func main() {
	cli.Execute()
}
