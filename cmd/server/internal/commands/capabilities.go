package commands

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/caseguard/internal/auth"
)

type CapabilitiesCmd struct {
	File string `help:"YAML capability table, embedded default if empty" env:"CASEGUARD_CAPABILITIES_FILE"`
}

func (c *CapabilitiesCmd) Run(globals *Globals) error {
	table, err := loadCapabilities(c.File)
	if err != nil {
		return err
	}
	return printCapabilities(os.Stdout, table)
}

func printCapabilities(w io.Writer, table *auth.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tROLE\tOPERATIONS\tBYPASS\tSUBTYPES")

	for _, e := range table.Entries() {
		ops := make([]string, len(e.Operations))
		for i, op := range e.Operations {
			ops[i] = string(op)
		}

		var subtypes []string
		for _, entity := range slices.Sorted(maps.Keys(e.Subtypes)) {
			subtypes = append(subtypes, entity+"="+strings.Join(e.Subtypes[entity], "|"))
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			e.Class, e.Role, strings.Join(ops, ","), e.BypassTenancy, strings.Join(subtypes, " "))
	}
	return tw.Flush()
}
