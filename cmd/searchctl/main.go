package main

import "github.com/Adithya-Monish-Kumar-K/newsindex/internal/cli"

func main() {
	cli.Execute()
}
