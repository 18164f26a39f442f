// Command admin inspects a roboblocks deployment: the submission audit
// log, the sqlite index, and the running server's state.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"roboblocks/internal/emit"
	"roboblocks/internal/program"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "emit":
			emitCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dir := fs.String("audit_dir", "./data/audit", "submission audit log directory")
	_ = fs.Parse(args)

	names, err := auditFiles(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dir := fs.String("audit_dir", "./data/audit", "submission audit log directory")
	since := fs.String("since", "", "only submissions at or after this RFC3339 time")
	action := fs.String("action", "", "run|save filter")
	digest := fs.String("digest", "", "program digest prefix filter")
	failed := fs.Bool("failed", false, "only failed handoffs")
	_ = fs.Parse(args)

	f := auditFilter{Action: strings.TrimSpace(*action), DigestPrefix: strings.TrimSpace(*digest), FailedOnly: *failed}
	if s := strings.TrimSpace(*since); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -since:", err)
			os.Exit(2)
		}
		f.Since = t
	}
	subs, err := readAudit(*dir, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, s := range subs {
		printJSON(s)
	}
}

// emitCmd prints the program for a saved workspace file (or stdin).
func emitCmd(args []string) {
	fs := flag.NewFlagSet("emit", flag.ExitOnError)
	in := fs.String("workspace", "-", "workspace JSON path, - for stdin")
	_ = fs.Parse(args)

	var (
		raw []byte
		err error
	)
	if *in == "-" {
		raw, err = readAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*in)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	doc, err := program.Decode(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	code, err := emit.New(nil).Program(doc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "emit:", err)
		os.Exit(1)
	}
	fmt.Print(code)
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
