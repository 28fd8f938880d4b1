package main

import (
	"os"

	"github.com/vaheed/fresco/internal/launcher"
)

func main() {
	os.Exit(launcher.Main(os.Args[1:]))
}
