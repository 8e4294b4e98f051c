package main

import (
	"github.com/lagmix/lagmix/pkg/cmd"
)

func main() {
	cmd.Execute()
}
