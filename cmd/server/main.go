package main

import (
	"github.com/dwarvesf/treasury-settlement/internal/server"
)

func main() {
	server.Init()
}
