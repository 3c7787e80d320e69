package main

import "github.com/charleschow/cricket-live/internal/process"

func main() {
	process.Run()
}
