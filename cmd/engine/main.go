// Engine CLI - compiles an ais-flow workflow into a plan and runs it
// to completion, pause, or cancellation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/owliabot/ais-sub001/internal/application/observer"
	"github.com/owliabot/ais-sub001/internal/config"
	"github.com/owliabot/ais-sub001/internal/infrastructure/logger"
	"github.com/owliabot/ais-sub001/pkg/command"
	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/engine"
	"github.com/owliabot/ais-sub001/pkg/eventlog"
	"github.com/owliabot/ais-sub001/pkg/executor"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/policy"
	"github.com/owliabot/ais-sub001/pkg/solver"
	"github.com/owliabot/ais-sub001/pkg/value"
)

const (
	version = "0.0.1"
	usage   = `engine - run a compiled cross-chain execution plan

USAGE:
    engine run <workflow.yaml> [options]
    engine version
    engine help

RUN OPTIONS:
    -pack <pack.yaml>           Pack document (policy/providers/overrides)
    -inputs <inputs.json>       JSON object of workflow input values
    -broadcast                  Allow write actions to actually broadcast (default: false, dry-run)
    -yes                        Accepted but has no effect: approval gates still pause the run
    -checkpoint <path>          Checkpoint file path (default from AIS_CHECKPOINT_PATH)
    -resume                     Resume from the checkpoint at -checkpoint
    -trace                      Write a JSONL trace of every engine event to stdout
    -trace-redact <mode>        off|audit|default (default: default)
    -events-jsonl <path>        Also write the JSONL trace to this file
    -events-ws <addr>           Serve a live websocket event stream on addr (e.g. :9191)
    -commands-stdin-jsonl       Read command envelopes (apply_patches/user_confirm/...) from stdin
    -write-outputs <path>       Write the workflow's declared outputs as JSON to this path

ENVIRONMENT VARIABLES (AIS_*, see internal/config) set the defaults of -broadcast,
-checkpoint, -trace-redact, -events-jsonl, -events-ws and -commands-stdin-jsonl.
`
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand(os.Args[2:])
	case "version":
		fmt.Printf("engine v%s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runCommand(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: run requires a workflow path")
		os.Exit(1)
	}
	workflowPath := args[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	packPath := fs.String("pack", "", "Pack document path")
	inputsPath := fs.String("inputs", "", "JSON object of workflow input values")
	broadcast := fs.Bool("broadcast", cfg.Engine.Broadcast, "Allow writes to broadcast")
	_ = fs.Bool("yes", false, "Accepted; has no effect")
	checkpointPath := fs.String("checkpoint", cfg.Engine.CheckpointPath, "Checkpoint file path")
	resume := fs.Bool("resume", false, "Resume from the checkpoint")
	trace := fs.Bool("trace", false, "Write a JSONL trace to stdout")
	traceRedact := fs.String("trace-redact", cfg.Engine.TraceRedaction, "off|audit|default")
	eventsJSONL := fs.String("events-jsonl", cfg.Engine.EventsJSONLPath, "Also write the trace to this file")
	eventsWS := fs.String("events-ws", cfg.Engine.EventsWSAddr, "Serve a live websocket event stream on addr")
	commandsStdin := fs.Bool("commands-stdin-jsonl", cfg.Engine.CommandsStdinJSONL, "Read commands from stdin")
	writeOutputs := fs.String("write-outputs", "", "Write workflow outputs as JSON to this path")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	wfData, err := os.ReadFile(workflowPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read workflow: %v\n", err)
		os.Exit(1)
	}
	wf, err := docs.LoadWorkflow(wfData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid workflow: %v\n", err)
		os.Exit(1)
	}

	protocols := docs.NewProtocolSet()
	workflowDir := filepath.Dir(workflowPath)
	for _, imp := range wf.Imports.Protocols {
		protoPath := imp.Path
		if !filepath.IsAbs(protoPath) {
			protoPath = filepath.Join(workflowDir, protoPath)
		}
		raw, err := os.ReadFile(protoPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read protocol %s: %v\n", imp.Protocol, err)
			os.Exit(1)
		}
		proto, err := docs.LoadProtocol(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid protocol %s: %v\n", imp.Protocol, err)
			os.Exit(1)
		}
		protocols.Add(imp.Protocol, proto)
	}

	var pack *docs.Pack
	if *packPath != "" {
		raw, err := os.ReadFile(*packPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read pack: %v\n", err)
			os.Exit(1)
		}
		pack, err = docs.LoadPack(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid pack: %v\n", err)
			os.Exit(1)
		}
	} else {
		pack = &docs.Pack{}
	}

	p, err := plan.Compile(wf, protocols)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to compile plan: %v\n", err)
		os.Exit(1)
	}

	root := value.NewRoot()
	if *inputsPath != "" {
		raw, err := os.ReadFile(*inputsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read inputs: %v\n", err)
			os.Exit(1)
		}
		var inputs map[string]interface{}
		if err := json.Unmarshal(raw, &inputs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid inputs JSON: %v\n", err)
			os.Exit(1)
		}
		for k, v := range inputs {
			root.ApplyUnguarded(value.Patch{Op: "set", Path: "inputs." + k, Value: v})
		}
	}
	for name, decl := range wf.Inputs {
		if _, ok := root.Get("inputs." + name); !ok && decl.Default != nil {
			root.ApplyUnguarded(value.Patch{Op: "set", Path: "inputs." + name, Value: decl.Default})
		}
	}

	runID := uuid.New().String()
	observers := observer.NewObserverManager(observer.WithLogger(log))

	sink := eventlog.NewSink(os.Stdout, runID, eventlog.RedactionMode(*traceRedact))
	if *trace {
		observers.Register(sink)
	}
	if *eventsJSONL != "" {
		f, err := os.Create(*eventsJSONL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open events file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		observers.Register(eventlog.NewSink(f, runID, eventlog.RedactionMode(*traceRedact)))
	}
	var wsSink *eventlog.WSSink
	if *eventsWS != "" {
		wsSink = eventlog.NewWSSink(runID, eventlog.RedactionMode(*traceRedact))
		observers.Register(wsSink)
		server := &http.Server{Addr: *eventsWS, Handler: wsSink}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("events-ws listener failed", "error", err)
			}
		}()
		defer server.Close()
	}

	policyEngine := policy.New(pack)

	registry := executor.NewRegistry()
	deps := executor.ChainDeps{Protocols: protocols, Policy: policyEngine}
	registry.Register(executor.Chain(&executor.EvmExecutor{Client: executor.NewMockEvmClient()}, deps))
	registry.Register(executor.Chain(&executor.SolanaExecutor{Client: executor.NewMockSolanaClient()}, deps))

	checkpointStore := eventlog.NewFileStore(*checkpointPath)

	var commandReader *command.Reader
	if *commandsStdin {
		commandReader = command.NewReader(os.Stdin, nil)
	}

	eng := engine.New(engine.Deps{
		Plan:       p,
		Root:       root,
		Protocols:  protocols,
		Executors:  registry,
		Observers:  observers,
		Checkpoint: checkpointStore,
		RunID:      runID,
		Broadcast:  *broadcast,
		SolverOpts: solver.New(),
		Commands:   commandReader,
		Guard:      value.DefaultGuard(),
	})

	if *resume {
		if cp, ok, err := checkpointStore.Load(runID); err == nil && ok {
			eng.Resume(cp)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		eng.Cancel("sigterm")
		cancel()
	}()
	defer signal.Stop(sigCh)

	outcome, err := eng.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("run %s: %s\n", runID, outcome)

	if *writeOutputs != "" && len(wf.Outputs) > 0 {
		out := make(map[string]interface{}, len(wf.Outputs))
		for name, ref := range wf.Outputs {
			v, err := value.Resolve(root, ref, value.Options{})
			if err != nil {
				log.Warn("failed to resolve output", "name", name, "error", err)
				continue
			}
			out[name] = v
		}
		raw, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to marshal outputs: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*writeOutputs, raw, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write outputs: %v\n", err)
			os.Exit(1)
		}
	}

	if outcome != engine.OutcomeCompleted {
		os.Exit(2)
	}
}
