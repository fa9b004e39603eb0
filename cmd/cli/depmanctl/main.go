package main

import (
	"context"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/deploy-tools/depman-go/pkg/health"
	"github.com/deploy-tools/depman-go/pkg/logging"
	"github.com/deploy-tools/depman-go/pkg/logging/zapsink"
	"github.com/deploy-tools/depman-go/pkg/supervisor"
)

type flagOptions struct {
	Config          string `long:"config" short:"c" description:"path to the YAML configuration file"`
	LogFile         string `long:"log-file" description:"deployment log file (overrides configuration)"`
	LogLevel        string `long:"log-level" description:"log level: debug, info, warn, error (overrides configuration)"`
	SkipHealthCheck bool   `long:"skip-health-check" description:"skip the post-readiness health check stage"`
}

const usage = "usage: depmanctl [options] <deploy|start|stop|health-check|status> [service...]"

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	args, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if len(args) == 0 {
		fmt.Println(usage)
		os.Exit(1)
	}
	command := args[0]
	services := args[1:]

	config, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	sink, closeSink, err := zapsink.New(zapsink.Config{
		Level:    config.Supervisor.LogLevel,
		Console:  true,
		FilePath: config.Supervisor.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeSink()

	logger := logging.NewLogger(logPrefix("depman"), logging.LogFuncs{
		LogLevelf: sink.LogLevelf,
		Debugf:    sink.Debugf,
		Infof:     sink.Infof,
		Warnf:     sink.Warnf,
		Errorf:    sink.Errorf,
	})

	orch := supervisor.NewOrchestrator(config, logger)
	ctx := context.Background()

	if err := dispatch(ctx, orch, command, services); err != nil {
		fmt.Fprintf(os.Stderr, "depmanctl %s failed: %v\n", command, err)
		if config.Supervisor.LogFile != "" {
			fmt.Fprintf(os.Stderr, "See %s for details\n", config.Supervisor.LogFile)
		}
		closeSink()
		os.Exit(1)
	}
}

func loadConfig(opts flagOptions) (*supervisor.Config, error) {
	var config *supervisor.Config
	var err error
	if opts.Config != "" {
		config, err = supervisor.LoadConfigFromFile(opts.Config)
		if err != nil {
			return nil, err
		}
	} else {
		config = supervisor.DefaultConfig()
	}

	if opts.LogFile != "" {
		config.Supervisor.LogFile = opts.LogFile
	}
	if opts.LogLevel != "" {
		config.Supervisor.LogLevel = opts.LogLevel
	}
	if opts.SkipHealthCheck {
		config.Supervisor.SkipHealthCheck = true
	}
	return config, nil
}

func dispatch(ctx context.Context, orch *supervisor.Orchestrator, command string, services []string) error {
	switch command {
	case "deploy":
		if len(services) > 0 {
			return fmt.Errorf("deploy operates on all services; use start for a subset")
		}
		outcome, err := orch.Deploy(ctx)
		printOutcome(outcome)
		return err

	case "start":
		outcome, err := orch.Start(ctx, services)
		printOutcome(outcome)
		return err

	case "stop":
		outcome, err := orch.Stop(ctx, services)
		printOutcome(outcome)
		return err

	case "health-check":
		results, err := orch.HealthCheck(ctx)
		printHealthResults(results)
		return err

	case "status":
		for _, status := range orch.Status(ctx) {
			state := "stopped"
			if status.Running {
				state = "running"
			}
			port := "free"
			if status.PortBound {
				port = "bound"
			}
			fmt.Printf("%-12s %-8s pid=%-8d port %d %s  %s\n",
				status.Service, state, status.PID, status.Port, port, status.Endpoint)
		}
		return nil

	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}
}

func printOutcome(outcome *supervisor.DeploymentOutcome) {
	if outcome == nil {
		return
	}
	for _, step := range outcome.Steps {
		line := fmt.Sprintf("%-14s %s", step.Step, step.Status)
		if step.Details != "" {
			line += "  " + step.Details
		}
		fmt.Println(line)
	}
	if outcome.Success && len(outcome.Endpoints) > 0 {
		fmt.Println("endpoints:")
		for service, endpoint := range outcome.Endpoints {
			fmt.Printf("  %s: %s\n", service, endpoint)
		}
	}
}

func printHealthResults(results []health.Result) {
	for _, result := range results {
		mark := "PASS"
		if !result.Passed {
			mark = "FAIL"
		}
		fmt.Printf("%s  %-12s %-16s %s\n", mark, result.Service, result.Kind, result.Details)
	}
}
