package console

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/dshills/stepdb/internal/debugger"
)

// action is a parsed command line: either a debugger command or something
// the console answers itself.
type action struct {
	cmd   debugger.Command
	local func(c *Console, stop *debugger.Stop)
	// repeatable commands run again on an empty line.
	repeatable bool
}

type parser func(args string, stop *debugger.Stop) (action, error)

var commands map[string]parser

func init() {
	resume := func(kind debugger.CommandKind) parser {
		return func(string, *debugger.Stop) (action, error) {
			return action{cmd: debugger.Command{Kind: kind}, repeatable: kind != debugger.CmdQuit}, nil
		}
	}
	local := func(fn func(c *Console, stop *debugger.Stop)) parser {
		return func(string, *debugger.Stop) (action, error) {
			return action{local: fn}, nil
		}
	}

	table := []struct {
		names []string
		parse parser
	}{
		{[]string{"c", "cont", "continue"}, resume(debugger.CmdContinue)},
		{[]string{"s", "step"}, resume(debugger.CmdStepInto)},
		{[]string{"n", "next"}, resume(debugger.CmdStepOver)},
		{[]string{"r", "return"}, resume(debugger.CmdStepReturn)},
		{[]string{"q", "quit", "exit"}, resume(debugger.CmdQuit)},
		{[]string{"restart"}, parseRestart},
		{[]string{"u", "up"}, parseMove(-1)},
		{[]string{"d", "down"}, parseMove(1)},
		{[]string{"p", "print"}, parseEvaluate},
		{[]string{"b", "break"}, parseBreak},
		{[]string{"cl", "clear"}, parseClear},
		{[]string{"l", "list"}, local((*Console).list)},
		{[]string{"w", "where", "bt"}, local((*Console).where)},
		{[]string{"v", "vars"}, local((*Console).vars)},
		{[]string{"h", "help", "?"}, local((*Console).help)},
	}

	commands = make(map[string]parser)
	for _, entry := range table {
		for _, name := range entry.names {
			commands[name] = entry.parse
		}
	}
}

// parse turns a command line into an action.
func parse(line string, stop *debugger.Stop) (action, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(line), " ")
	p, ok := commands[name]
	if !ok {
		return action{}, fmt.Errorf("unknown command %q, type h for help", name)
	}
	return p(strings.TrimSpace(args), stop)
}

func parseRestart(string, *debugger.Stop) (action, error) {
	return action{cmd: debugger.Command{Kind: debugger.CmdRestart}}, nil
}

func parseMove(direction int) parser {
	return func(args string, _ *debugger.Stop) (action, error) {
		count := 1
		if args != "" {
			n, err := strconv.Atoi(args)
			if err != nil || n < 1 {
				return action{}, fmt.Errorf("invalid frame count %q", args)
			}
			count = n
		}
		return action{
			cmd:        debugger.Command{Kind: debugger.CmdMoveFrame, Delta: direction * count},
			repeatable: true,
		}, nil
	}
}

func parseEvaluate(args string, _ *debugger.Stop) (action, error) {
	if args == "" {
		return action{}, errors.New("usage: p <expression>")
	}
	return action{cmd: debugger.Command{Kind: debugger.CmdEvaluate, Expr: args}}, nil
}

// parseBreak handles "b", "b line", "b file:line" and a trailing
// ", condition".
func parseBreak(args string, stop *debugger.Stop) (action, error) {
	if args == "" {
		return action{local: (*Console).listBreakpoints}, nil
	}

	spec, cond, _ := strings.Cut(args, ",")
	file, line, err := parseLocation(spec, stop)
	if err != nil {
		return action{}, err
	}
	return action{cmd: debugger.Command{
		Kind:      debugger.CmdBreak,
		File:      file,
		Line:      line,
		Condition: strings.TrimSpace(cond),
	}}, nil
}

// parseClear handles "cl id" and "cl file:line".
func parseClear(args string, stop *debugger.Stop) (action, error) {
	if args == "" {
		return action{}, errors.New("usage: cl <id> | cl [file:]line")
	}
	if id, err := strconv.Atoi(args); err == nil && !strings.Contains(args, ":") {
		if id < 1 {
			return action{}, fmt.Errorf("invalid breakpoint number %d", id)
		}
		return action{cmd: debugger.Command{Kind: debugger.CmdClearBreak, ID: id}}, nil
	}
	file, line, err := parseLocation(args, stop)
	if err != nil {
		return action{}, err
	}
	return action{cmd: debugger.Command{Kind: debugger.CmdClearBreak, File: file, Line: line}}, nil
}

// parseLocation resolves "[file:]line". The file may be quoted; without one
// the current source file is used.
func parseLocation(spec string, stop *debugger.Stop) (string, int, error) {
	words, err := shlex.Split(spec)
	if err != nil {
		return "", 0, fmt.Errorf("invalid location %q: %v", spec, err)
	}
	if len(words) != 1 {
		return "", 0, fmt.Errorf("invalid location %q", strings.TrimSpace(spec))
	}
	loc := words[0]

	file := ""
	lineText := loc
	if i := strings.LastIndex(loc, ":"); i >= 0 {
		file, lineText = loc[:i], loc[i+1:]
	}
	line, err := strconv.Atoi(lineText)
	if err != nil || line < 1 {
		return "", 0, fmt.Errorf("invalid line number %q", lineText)
	}

	if file == "" {
		if stop == nil || stop.Source == nil {
			return "", 0, errors.New("no current file, use file:line")
		}
		current, ok := stop.Source.BreakpointSourceIdentifier()
		if !ok {
			return "", 0, errors.New("the current source has no file, use file:line")
		}
		return current, line, nil
	}
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	return file, line, nil
}
