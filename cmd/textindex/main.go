package main

import "github.com/Adithya-Monish-Kumar-K/textindex/internal/cli"

func main() {
	cli.Execute()
}
