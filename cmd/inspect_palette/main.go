// Command inspect_palette prints the block states of a palette file whose
// name contains a filter, along with their runtime ID and hash.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dm-vev/chunky/client/palette"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: inspect_palette <block_palette.nbt> [filter]")
		os.Exit(2)
	}
	f, err := os.Open(os.Args[1])
	if err != nil {
		panic(err)
	}
	defer f.Close()

	states, err := palette.Read(f)
	if err != nil {
		panic(err)
	}
	filter := ""
	if len(os.Args) > 2 {
		filter = os.Args[2]
	}
	for rid, s := range states {
		if strings.Contains(s.Name, filter) {
			fmt.Printf("%5d %016x %s => %+v\n", rid, s.Hash(), s.Name, s.Properties)
		}
	}
	fmt.Printf("%v block states\n", len(states))
}
