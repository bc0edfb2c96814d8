package main

import (
	"log"

	"atachain/services/sweepd"
)

func main() {
	if err := sweepd.Main(); err != nil {
		log.Fatalf("sweepd: %v", err)
	}
}
