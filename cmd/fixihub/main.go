package main

import "github.com/jsherman999/fixihub/internal/cli"

func main() { cli.Main() }
