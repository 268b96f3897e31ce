package main

import (
	"github.com/nfrund/tickstream/internal/server"
)

func main() {
	s := server.New()
	s.Start()
}
