package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	root := newRootCmd(&http.Client{Timeout: 60 * time.Second})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
