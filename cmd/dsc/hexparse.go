package main

import "strconv"

// parseUintArg parses a CLI numeric argument that may be decimal or
// 0x-prefixed hex, per the <vmaddr>/<size> grammar.
func parseUintArg(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}
