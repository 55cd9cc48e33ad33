package main

import "github.com/jsherman999/fixihub/internal/daemon"

func main() { daemon.Main() }
