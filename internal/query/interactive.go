package query

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/peterh/liner"
)

// historyLimit bounds the in-memory input history; nothing persists across
// sessions
const historyLimit = 100

// Interactive is the read-evaluate loop: recognized command tokens dispatch
// directly, anything else runs as a text query
type Interactive struct {
	engine  *Engine
	out     io.Writer
	history []string
}

// NewInteractive creates an interactive session over the engine
func NewInteractive(engine *Engine, out io.Writer) *Interactive {
	return &Interactive{engine: engine, out: out}
}

// Run drives the prompt loop until quit or EOF
func (it *Interactive) Run() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Fprintln(it.out, "Interactive file search (type 'help' for commands, 'quit' to exit)")

	for {
		input, err := line.Prompt("search> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Fprintln(it.out, "\nGoodbye!")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)
		it.remember(input)

		if done := it.dispatch(input); done {
			fmt.Fprintln(it.out, "Goodbye!")
			return nil
		}
	}
}

// dispatch handles one input; returns true on quit
func (it *Interactive) dispatch(input string) bool {
	switch strings.ToLower(input) {
	case "quit", "exit", "q":
		return true
	case "help":
		it.printHelp()
		return false
	case "stats":
		it.printStats()
		return false
	case "history":
		for i, h := range it.history {
			fmt.Fprintf(it.out, "%3d  %s\n", i+1, h)
		}
		return false
	}

	it.runQuery(input)
	return false
}

func (it *Interactive) runQuery(text string) {
	start := time.Now()
	results, err := it.engine.Search(Filter{Text: text, Limit: 50})
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(it.out, "Error: %v\n", err)
		return
	}
	if len(results) == 0 {
		fmt.Fprintln(it.out, "No results found.")
		return
	}

	for i, rec := range results {
		marker := " "
		if rec.IsDir {
			marker = "d"
		}
		fmt.Fprintf(it.out, "%3d. %s %s\n", i+1, marker, rec.Path)
	}
	fmt.Fprintf(it.out, "\n%d results in %.1fms\n", len(results), float64(elapsed.Microseconds())/1000)
}

func (it *Interactive) printStats() {
	stats, err := it.engine.Stats()
	if err != nil {
		fmt.Fprintf(it.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(it.out, "Entries: %d (%d dirs, %d files), total size %s, database %s\n",
		stats.TotalEntries, stats.Directories, stats.Files,
		FormatSize(stats.TotalSize), FormatSize(stats.DBSizeBytes))
}

func (it *Interactive) printHelp() {
	fmt.Fprintln(it.out, "Commands:")
	fmt.Fprintln(it.out, "  help     show this help")
	fmt.Fprintln(it.out, "  stats    index statistics")
	fmt.Fprintln(it.out, "  history  previous inputs this session")
	fmt.Fprintln(it.out, "  quit     exit")
	fmt.Fprintln(it.out, "Anything else searches file names (trailing * for prefix match).")
}

func (it *Interactive) remember(input string) {
	it.history = append(it.history, input)
	if len(it.history) > historyLimit {
		it.history = it.history[len(it.history)-historyLimit:]
	}
}
