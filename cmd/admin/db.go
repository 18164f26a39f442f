package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./data/index/roboblocks.sqlite", "sqlite index path")
	limit := fs.Int("limit", 20, "result limit")
	digest := fs.String("digest", "", "digest filter (submissions)")
	_ = fs.Parse(args)

	q := "submissions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "submissions":
		query := `SELECT id,at,action,bridge,digest,lines,bytes,COALESCE(err,'') FROM submissions`
		qargs := []any{}
		if d := strings.TrimSpace(*digest); d != "" {
			query += ` WHERE digest=?`
			qargs = append(qargs, d)
		}
		query += ` ORDER BY at DESC, id DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID     string `json:"id"`
				At     string `json:"at"`
				Action string `json:"action"`
				Bridge string `json:"bridge"`
				Digest string `json:"digest"`
				Lines  int    `json:"lines"`
				Bytes  int    `json:"bytes"`
				Err    string `json:"err,omitempty"`
			}
			if err := rows.Scan(&r.ID, &r.At, &r.Action, &r.Bridge, &r.Digest, &r.Lines, &r.Bytes, &r.Err); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "programs":
		// Distinct programs by how often they were handed off.
		rows, err := db.Query(`SELECT digest, COUNT(*), MAX(at), MAX(lines) FROM submissions GROUP BY digest ORDER BY COUNT(*) DESC, MAX(at) DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Digest string `json:"digest"`
				Count  int    `json:"count"`
				LastAt string `json:"last_at"`
				Lines  int    `json:"lines"`
			}
			if err := rows.Scan(&r.Digest, &r.Count, &r.LastAt, &r.Lines); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at,LENGTH(json) FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
				Bytes     int    `json:"bytes"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt, &r.Bytes); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(submissions|programs|catalogs)")
		os.Exit(2)
	}
}
