package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"

	"github.com/mukteshkrmishra/rethinkdb"
	"github.com/mukteshkrmishra/rethinkdb/cursor"
	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/ql"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("get"),
	readline.PcItem("set"),
	readline.PcItem("del"),
	readline.PcItem("replace"),
	readline.PcItem("scan"),
	readline.PcItem("count"),
	readline.PcItem("erase"),
	readline.PcItem("index",
		readline.PcItem("create"),
		readline.PcItem("build"),
		readline.PcItem("drop"),
		readline.PcItem("list"),
	),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const usage = `commands:
  get <key>                     fetch a document by primary key
  set <json>                    insert or overwrite a document
  del <key>                     delete a document by primary key
  replace <key> <json>          replace a document, printing the summary
  scan [limit]                  stream documents in key order
  count                         count documents
  erase <left> <right>          erase a primary key range
  index create <name> <field>   define a secondary index on a field
  index build <name>            populate the index and mark it ready
  index drop <name>
  index list`

func strKey(arg string) datum.StoreKey {
	k, _ := datum.PrimaryKey(datum.String(arg))
	return k
}

func cmdScan(ctx context.Context, store *rethinkdb.Store, args []string) error {
	limit := int64(0)
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		limit = int64(n)
	}
	req := &rethinkdb.ScanRequest{
		Range:     datum.UnboundedRange(),
		Direction: cursor.Forward,
		Batch:     ql.BatchSpec{MaxEls: limit},
	}
	resp, err := store.RangeScan(ctx, req)
	if err != nil {
		return err
	}
	switch out := resp.Outcome.(type) {
	case rethinkdb.StreamOutcome:
		for _, item := range out.Items {
			fmt.Println(item.Doc.String())
		}
		if resp.Truncated {
			fmt.Println("(truncated)")
		}
	case rethinkdb.ErrorOutcome:
		return out.Err
	}
	return nil
}

func cmdIndex(ctx context.Context, store *rethinkdb.Store, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("index: missing subcommand")
	}
	switch args[0] {
	case "create":
		if len(args) != 3 {
			return fmt.Errorf("usage: index create <name> <field>")
		}
		_, err := store.CreateSindex(ctx, args[1], ql.FieldFunc(args[2]), false)
		return err
	case "build":
		if len(args) != 2 {
			return fmt.Errorf("usage: index build <name>")
		}
		return store.PostConstructSindexes(ctx, args[1])
	case "drop":
		if len(args) != 2 {
			return fmt.Errorf("usage: index drop <name>")
		}
		return store.DropSindex(ctx, args[1])
	case "list":
		for _, def := range store.Sindexes() {
			state := "building"
			if def.Ready {
				state = "ready"
			}
			fmt.Printf("%s\t%s\t%s\n", def.Name, def.ID, state)
		}
		return nil
	}
	return fmt.Errorf("index: unknown subcommand %s", args[0])
}

func main() {
	dir := "rethinkdb_data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	store, err := rethinkdb.Open(dir, rethinkdb.Options{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     "/tmp/readline.tmp",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	ctx := context.Background()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		args := strings.Split(line, " ")
		cmd := args[0]
		args = args[1:]
		err = nil
		switch cmd {
		case "help":
			fmt.Println(usage)
		case "exit", "quit":
			ex := 0
			err = store.Close()
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
				ex = -1
			}
			os.Exit(ex)
		case "get":
			if len(args) != 1 {
				err = fmt.Errorf("usage: get <key>")
				break
			}
			var doc *datum.Datum
			doc, err = store.Get(ctx, strKey(args[0]))
			if err == nil {
				fmt.Println(doc.String())
			}
		case "set":
			var doc *datum.Datum
			doc, err = datum.FromJSON([]byte(strings.Join(args, " ")))
			if err != nil {
				break
			}
			_, err = store.Insert(ctx, doc, true)
		case "del":
			if len(args) != 1 {
				err = fmt.Errorf("usage: del <key>")
				break
			}
			var res rethinkdb.PointDeleteResult
			res, err = store.DeleteDoc(ctx, strKey(args[0]))
			if err == nil && res == rethinkdb.PointMissing {
				fmt.Println("(not found)")
			}
		case "replace":
			if len(args) < 2 {
				err = fmt.Errorf("usage: replace <key> <json>")
				break
			}
			var doc *datum.Datum
			doc, err = datum.FromJSON([]byte(strings.Join(args[1:], " ")))
			if err != nil {
				break
			}
			var summary *datum.Datum
			summary, err = store.Replace(ctx, strKey(args[0]),
				rethinkdb.ReplaceFunc(func(*datum.Datum) (*datum.Datum, error) {
					return doc, nil
				}), false)
			if err == nil {
				fmt.Println(summary.String())
			}
		case "scan":
			err = cmdScan(ctx, store, args)
		case "count":
			var resp *rethinkdb.ScanResponse
			resp, err = store.RangeScan(ctx, &rethinkdb.ScanRequest{
				Range:    datum.UnboundedRange(),
				Terminal: &ql.Count{},
			})
			if err == nil {
				if agg, ok := resp.Outcome.(rethinkdb.AggregateOutcome); ok {
					fmt.Println(agg.Value.String())
				}
			}
		case "erase":
			if len(args) != 2 {
				err = fmt.Errorf("usage: erase <left> <right>")
				break
			}
			err = store.EraseKeyRange(ctx, datum.KeyRange{
				Left:  strKey(args[0]),
				Right: strKey(args[1]),
			})
		case "index":
			err = cmdIndex(ctx, store, args)
		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
}
