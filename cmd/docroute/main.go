// =============================================================================
// DocRoute 主入口
// =============================================================================
// 工作流定义与归档管理命令行工具
//
// 使用方法:
//
//	docroute validate                       # 校验定义目录
//	docroute validate --config config.yaml  # 指定配置文件
//	docroute show <definition-id>           # 输出定义图的 JSON
//	docroute archive list                   # 列出已归档实例
//	docroute archive tasks <instance-id>    # 列出实例的归档任务
//	docroute version                        # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nuxeo/docroute/config"
	"github.com/nuxeo/docroute/registry"
	"github.com/nuxeo/docroute/store"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidate(os.Args[2:])
	case "show":
		runShow(os.Args[2:])
	case "archive":
		runArchive(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 解析 --config 参数并加载配置
func loadConfig(name string, args []string) (*config.Config, []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg, fs.Args()
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func runValidate(args []string) {
	cfg, _ := loadConfig("validate", args)
	logger := cfg.Log.MustBuildLogger()
	defer logger.Sync()

	defs := registry.NewInMemory(logger)
	if err := defs.LoadDir(cfg.Engine.DefinitionsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	ids := defs.List()
	fmt.Printf("OK: %d definition(s) in %s\n", len(ids), cfg.Engine.DefinitionsDir)
	for _, id := range ids {
		fmt.Printf("  %s versions=%v\n", id, defs.Versions(id))
	}
}

// =============================================================================
// 📄 show 命令
// =============================================================================

func runShow(args []string) {
	cfg, rest := loadConfig("show", args)
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: docroute show <definition-id>")
		os.Exit(1)
	}
	logger := cfg.Log.MustBuildLogger()
	defer logger.Sync()

	defs := registry.NewInMemory(logger)
	if err := defs.LoadDir(cfg.Engine.DefinitionsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load definitions: %v\n", err)
		os.Exit(1)
	}

	def, err := defs.GetDefinition(context.Background(), rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	out, err := def.Spec().ToJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to serialize definition: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}

// =============================================================================
// 🗄️ archive 命令
// =============================================================================

func runArchive(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: docroute archive <list|tasks> [options]")
		os.Exit(1)
	}
	sub := args[0]
	cfg, rest := loadConfig("archive "+sub, args[1:])
	logger := cfg.Log.MustBuildLogger()
	defer logger.Sync()

	st, err := store.Open(store.Config{
		Driver:          store.Driver(cfg.Database.Driver),
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open archive store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	switch sub {
	case "list":
		instances, err := st.ListInstances(ctx, store.InstanceFilter{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list instances: %v\n", err)
			os.Exit(1)
		}
		for _, inst := range instances {
			fmt.Printf("%s  %-12s %-10s doc=%s archived=%s\n",
				inst.ID, inst.DefinitionID, inst.Status, inst.DocumentID,
				inst.ArchivedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("%d instance(s)\n", len(instances))

	case "tasks":
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: docroute archive tasks <instance-id>")
			os.Exit(1)
		}
		tasks, err := st.TasksForInstance(ctx, rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list tasks: %v\n", err)
			os.Exit(1)
		}
		for _, task := range tasks {
			fmt.Printf("%s  step=%s status=%s outcome=%s by=%s\n",
				task.ID, task.StepID, task.Status, task.Outcome, task.CompletedBy)
		}
		fmt.Printf("%d task(s)\n", len(tasks))

	default:
		fmt.Fprintf(os.Stderr, "Unknown archive subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("DocRoute %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`DocRoute - Document Routing Workflow Engine

Usage:
  docroute <command> [options]

Commands:
  validate  Validate the configured definitions directory
  show      Print a workflow definition graph as JSON
  archive   Query the archive store
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)

Archive subcommands:
  archive list               List archived instances
  archive tasks <instance>   List archived tasks of an instance

Examples:
  docroute validate --config /etc/docroute/config.yaml
  docroute show doc-review
  docroute archive list
  docroute archive tasks 6f1c0c7e-...`)
}
