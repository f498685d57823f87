package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/script-bridge/class"
	"github.com/wippyai/script-bridge/isolate"
	"github.com/wippyai/script-bridge/task"
)

func main() {
	var (
		funcName    = flag.String("func", "", "Function to call (optional)")
		argsStr     = flag.String("args", "", "Arguments, comma-separated (numbers, true/false, or strings)")
		workers     = flag.Int("workers", 0, "Background worker count (0 = CPU count)")
		list        = flag.Bool("list", false, "List exported functions and exit")
		gc          = flag.Bool("gc", false, "Run a collection after the call and print heap stats")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		isolate.SetLogger(log)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*workers); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*funcName, *argsStr, *workers, *list, *gc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is one booted bridge: a running isolate, its task scheduler, and
// the demo module published on the default realm's global.
type env struct {
	iso   *isolate.Isolate
	sched *task.Scheduler
}

func boot(workers int) (*env, error) {
	iso := isolate.New()
	go iso.Run()

	opts := []task.Option{}
	if workers > 0 {
		opts = append(opts, task.WithWorkers(workers))
	}
	sched := task.NewScheduler(iso, opts...)

	if err := installDemo(iso, sched); err != nil {
		_ = sched.Close()
		_ = iso.Close()
		return nil, err
	}
	return &env{iso: iso, sched: sched}, nil
}

func (e *env) close() {
	_ = e.sched.Close()
	_ = e.iso.Close()
}

type counter struct {
	n float64
}

// installDemo publishes a small module under "demo" on the global:
// plain functions, an async function driven by the scheduler, and a
// Counter class with foreign internals.
func installDemo(iso *isolate.Isolate, sched *task.Scheduler) error {
	return iso.Exec(func() error {
		return iso.InitModule("demo", sched, func(s *isolate.Scope, exports isolate.Local, kernel any) error {
			sc := kernel.(*task.Scheduler)

			add := s.Function("add", func(call *isolate.FunctionCall) (isolate.Local, error) {
				a, err := call.Arg(0).NumberValue()
				if err != nil {
					return isolate.Local{}, err
				}
				b, err := call.Arg(1).NumberValue()
				if err != nil {
					return isolate.Local{}, err
				}
				return call.Scope.Number(a + b), nil
			})
			if _, err := exports.Set("add", add); err != nil {
				return err
			}

			greet := s.Function("greet", func(call *isolate.FunctionCall) (isolate.Local, error) {
				name, err := call.Arg(0).StringValue()
				if err != nil {
					return isolate.Local{}, err
				}
				return call.Scope.String("hello, " + name)
			})
			if _, err := exports.Set("greet", greet); err != nil {
				return err
			}

			// later(value, cb) echoes value back through cb on the
			// runtime thread after a trip through the worker pool.
			later := s.Function("later", func(call *isolate.FunctionCall) (isolate.Local, error) {
				v, err := call.Arg(0).NumberValue()
				if err != nil {
					return isolate.Local{}, err
				}
				_, err = sc.Schedule(call.Scope, call.Arg(1), v,
					func(work any) any { return work },
					func(s *isolate.Scope, work, result any) (isolate.Local, error) {
						return s.Number(result.(float64)), nil
					})
				return isolate.Local{}, err
			})
			if _, err := exports.Set("later", later); err != nil {
				return err
			}

			meta, err := class.CreateBase(s, "Counter", class.Config{
				Allocate: func(call *isolate.FunctionCall) (any, error) {
					n, err := call.Arg(0).NumberValue()
					if err != nil {
						n = 0
					}
					return &counter{n: n}, nil
				},
			})
			if err != nil {
				return err
			}
			err = meta.AddMethod(s, "increment", func(call *isolate.FunctionCall, internals any) (isolate.Local, error) {
				internals.(*counter).n++
				return call.Scope.Number(internals.(*counter).n), nil
			})
			if err != nil {
				return err
			}
			err = meta.AddMethod(s, "value", func(call *isolate.FunctionCall, internals any) (isolate.Local, error) {
				return call.Scope.Number(internals.(*counter).n), nil
			})
			if err != nil {
				return err
			}
			ctor, err := meta.Constructor(s)
			if err != nil {
				return err
			}
			if _, err := exports.Set("Counter", ctor); err != nil {
				return err
			}
			return nil
		})
	})
}

// exportNames lists the demo module's exports. Runtime thread only.
func exportNames(s *isolate.Scope) ([]string, error) {
	mod, err := s.Global().Get("demo")
	if err != nil {
		return nil, err
	}
	return mod.OwnPropertyNames()
}

func run(funcName, argsStr string, workers int, listOnly, gc bool) error {
	e, err := boot(workers)
	if err != nil {
		return err
	}
	defer e.close()

	var names []string
	if err := e.iso.Exec(func() error {
		return e.iso.Nested(func(s *isolate.Scope) error {
			var err error
			names, err = exportNames(s)
			return err
		})
	}); err != nil {
		return err
	}

	fmt.Printf("Exported functions:\n")
	for _, name := range names {
		fmt.Printf("  demo.%s\n", name)
	}
	if listOnly {
		return nil
	}

	if funcName == "" {
		fmt.Printf("\nNo function specified. Use -func to call one, or -i for interactive mode.\n")
		return nil
	}

	var rendered string
	err = e.iso.Exec(func() error {
		return e.iso.Nested(func(s *isolate.Scope) error {
			var err error
			rendered, err = invoke(s, funcName, splitArgs(argsStr))
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("\nResult: %s\n", rendered)

	if gc {
		if err := e.iso.Exec(func() error {
			before := e.iso.LiveCount()
			e.iso.CollectGarbage()
			fmt.Printf("\nHeap: %d live cells before collection, %d after\n", before, e.iso.LiveCount())
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// invoke resolves demo.<name>, converts args, calls it, and renders the
// result. Runtime thread only.
func invoke(s *isolate.Scope, name string, args []string) (string, error) {
	mod, err := s.Global().Get("demo")
	if err != nil {
		return "", err
	}
	fn, err := mod.Get(name)
	if err != nil {
		return "", err
	}
	if !fn.IsFunction() {
		return "", fmt.Errorf("demo.%s is not a function", name)
	}

	locals := make([]isolate.Local, len(args))
	for i, raw := range args {
		locals[i], err = convertArg(s, raw)
		if err != nil {
			return "", err
		}
	}

	var ret isolate.Local
	if name == "Counter" {
		ret, err = fn.Construct(locals...)
	} else {
		ret, err = fn.Call(s.Undefined(), locals...)
	}
	if err != nil {
		if thrown, ok := isolate.CaughtValue(err, s); ok {
			str, serr := thrown.ToString()
			if serr != nil {
				return "", serr
			}
			msg, _ := str.StringValue()
			return "", fmt.Errorf("uncaught: %s", msg)
		}
		return "", err
	}
	if ret.IsEmpty() {
		return "undefined", nil
	}
	str, err := ret.ToString()
	if err != nil {
		return "", err
	}
	return str.StringValue()
}

// convertArg maps a raw CLI token onto a runtime value: numbers and
// booleans by syntax, everything else a string.
func convertArg(s *isolate.Scope, raw string) (isolate.Local, error) {
	if raw == "true" || raw == "false" {
		return s.Boolean(raw == "true"), nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return s.Number(n), nil
	}
	return s.String(raw)
}

func splitArgs(argsStr string) []string {
	if argsStr == "" {
		return nil
	}
	parts := strings.Split(argsStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
