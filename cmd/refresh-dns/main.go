package main

import (
	"os"

	refreshdns "github.com/nite-coder/refresh-dns"
)

var version = "dev"

func main() {
	if err := refreshdns.Run(refreshdns.WithVersion(version)); err != nil {
		os.Exit(refreshdns.ExitFailure)
	}
}
