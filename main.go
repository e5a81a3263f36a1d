package main

import (
	"github.com/wolfsblu/stoca/internal/cmd"
)

func main() {
	cmd.Execute()
}
