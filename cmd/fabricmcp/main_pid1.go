//go:build !no_psi

package main

import "pkt.systems/psi"

// Run under psi so the binary behaves when started as PID 1 in a container:
// signals forwarded, orphans reaped.
func main() {
	psi.Run(submain)
}
