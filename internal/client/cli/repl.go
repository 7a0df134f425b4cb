package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Tables(ctx context.Context) error
	Put(ctx context.Context, table, body string) error
	Get(ctx context.Context, table, id string) error
	List(ctx context.Context, table string) error
	Delete(ctx context.Context, table, id string) error
	Conflicts(ctx context.Context, table string) error
	Sync(ctx context.Context, force bool) error
	Status(ctx context.Context) error
	Image(ctx context.Context, productID, path string) error
}

const (
	helpLoggedOut = "Available commands: login, exit"
	helpLoggedIn  = "Available commands: tables, put <table> [json], get <table> <id>, list <table>, " +
		"delete <table> <id>, conflicts <table>, sync [force], status, image <productId> <path>, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the Shopkeeper client.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. The loop exits on EOF or when the user types
// "exit" or "quit". Everything after "put <table>" is taken verbatim as the
// record body, so JSON with spaces works on one line.
//
// Data commands require a session; an offline session is enough since they
// only touch the local replica.
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("shop %s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "login":
			report(a.Login(ctx))
			continue
		}

		if !a.isLoggedIn() {
			if isDataCommand(cmd) {
				printlnFn("Please log in first")
			} else {
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		switch cmd {
		case "logout":
			report(a.Logout(ctx))

		case "tables":
			report(a.Tables(ctx))

		case "put":
			if len(args) < 1 {
				printlnFn("Usage: put <table> [json]")
				continue
			}
			report(a.Put(ctx, args[0], restAfter(line, 2)))

		case "get":
			if len(args) < 2 {
				printlnFn("Usage: get <table> <id>")
				continue
			}
			report(a.Get(ctx, args[0], args[1]))

		case "l", "list":
			if len(args) < 1 {
				printlnFn("Usage: list <table>")
				continue
			}
			report(a.List(ctx, args[0]))

		case "delete":
			if len(args) < 2 {
				printlnFn("Usage: delete <table> <id>")
				continue
			}
			report(a.Delete(ctx, args[0], args[1]))

		case "conflicts":
			if len(args) < 1 {
				printlnFn("Usage: conflicts <table>")
				continue
			}
			report(a.Conflicts(ctx, args[0]))

		case "sync":
			force := len(args) > 0 && args[0] == "force"
			report(a.Sync(ctx, force))

		case "status":
			report(a.Status(ctx))

		case "image":
			if len(args) < 2 {
				printlnFn("Usage: image <productId> <path>")
				continue
			}
			report(a.Image(ctx, args[0], args[1]))

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func isDataCommand(cmd string) bool {
	switch cmd {
	case "logout", "tables", "put", "get", "l", "list", "delete", "conflicts", "sync", "status", "image":
		return true
	}
	return false
}

// restAfter returns line with its first n whitespace-separated tokens removed.
func restAfter(line string, n int) string {
	s := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			return ""
		}
		s = strings.TrimSpace(s[idx:])
	}
	return s
}

func report(err error) {
	if err != nil {
		printlnFn("Error:", err.Error())
	}
}
