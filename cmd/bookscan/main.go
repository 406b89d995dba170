package main

import (
	"github.com/MeKo-Tech/bookscan/cmd/bookscan/cmd"
)

func main() {
	cmd.Execute()
}
