// Command dbctl is a small operator tool for inspecting and poking at
// a single AgentState SQLite file directly, without going through the
// HTTP API — useful when debugging a stuck agent from a shell.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "", "Path to an AgentState SQLite file")
	action := flag.String("action", "", "Action to perform: heartbeat, soul, goals")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	if *dbPath == "" || *action == "" {
		fmt.Fprintf(os.Stderr, "Usage: dbctl -db <path> -action <heartbeat|soul|goals> [-json]\n")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", *dbPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *action {
	case "heartbeat":
		if err := touchHeartbeat(db); err != nil {
			fmt.Fprintf(os.Stderr, "heartbeat failed: %v\n", err)
			os.Exit(1)
		}
		if *jsonOutput {
			json.NewEncoder(os.Stdout).Encode(map[string]any{"ok": true, "at": time.Now().UTC().Format(time.RFC3339)})
		} else {
			fmt.Println("heartbeat recorded")
		}

	case "soul":
		soul, err := readSoul(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "soul failed: %v\n", err)
			os.Exit(1)
		}
		json.NewEncoder(os.Stdout).Encode(soul)

	case "goals":
		goals, err := listOpenGoals(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "goals failed: %v\n", err)
			os.Exit(1)
		}
		json.NewEncoder(os.Stdout).Encode(goals)

	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", *action)
		os.Exit(1)
	}
}

func touchHeartbeat(db *sql.DB) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(`
		INSERT INTO heartbeat (id, last_heartbeat, log) VALUES (1, ?, '[]')
		ON CONFLICT(id) DO UPDATE SET last_heartbeat = excluded.last_heartbeat
	`, now)
	if err != nil {
		return err
	}
	if _, err := result.RowsAffected(); err != nil {
		return err
	}
	return nil
}

type soulSummary struct {
	SoulID         string `json:"soulId"`
	Name           string `json:"name"`
	Level          string `json:"level"`
	TotalXP        int    `json:"totalXp"`
	TasksCompleted int    `json:"tasksCompleted"`
}

func readSoul(db *sql.DB) (*soulSummary, error) {
	var s soulSummary
	err := db.QueryRow(`
		SELECT soul_id, name, level, total_xp, tasks_completed FROM soul WHERE id = 1
	`).Scan(&s.SoulID, &s.Name, &s.Level, &s.TotalXP, &s.TasksCompleted)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type goalSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

func listOpenGoals(db *sql.DB) ([]goalSummary, error) {
	rows, err := db.Query(`
		SELECT id, title, status, priority FROM goals
		WHERE status IN ('pending', 'in_progress')
		ORDER BY priority DESC, created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := []goalSummary{}
	for rows.Next() {
		var g goalSummary
		if err := rows.Scan(&g.ID, &g.Title, &g.Status, &g.Priority); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}
