package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"

	"github.com/promptvault/promptvault/internal/config"
	"github.com/promptvault/promptvault/internal/core"
	"github.com/promptvault/promptvault/internal/manager"
	"github.com/promptvault/promptvault/internal/storage"
	"github.com/promptvault/promptvault/internal/version"
)

const usage = `Usage: promptvault <command> [flags]

Commands:
  list      List prompts in the store
  show      Show one prompt version
  render    Render a prompt with variables
  history   Show a prompt's version history
  put       Create or update a prompt from a JSON file
  search    Full-text search across prompts
  watch     Watch the store and reload prompts on change
  config    Show or change persisted defaults

Common flags:
  -store <dir>   Prompt store directory (default: $PROMPTVAULT_STORE or ./prompts)
`

// defaults holds persisted CLI preferences, loaded once at startup. Flags
// and environment variables override it.
var defaults = &config.Config{}

func main() {
	// Load .env file if it exists.
	_ = godotenv.Load()

	if cm, err := config.NewManager(); err == nil {
		if cfg, err := cm.Load(); err == nil {
			defaults = cfg
		}
	}

	ctx := context.Background()

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "list":
		err = runList(ctx, args[1:])
	case "show":
		err = runShow(ctx, args[1:])
	case "render":
		err = runRender(ctx, args[1:])
	case "history":
		err = runHistory(ctx, args[1:])
	case "put":
		err = runPut(ctx, args[1:])
	case "search":
		err = runSearch(ctx, args[1:])
	case "watch":
		err = runWatch(ctx, args[1:])
	case "config":
		err = runConfig(args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", args[0], err)
	}
}

func storeFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("PROMPTVAULT_STORE")
	if def == "" {
		def = defaults.StoreDir
	}
	if def == "" {
		def = "./prompts"
	}
	return fs.String("store", def, "prompt store directory")
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	storePath := storeFlag(fs)
	tag := fs.String("tag", "", "filter by tag")
	status := fs.String("status", "", "filter by status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewFile(*storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	prompts, err := store.List(ctx, storage.Filter{Tag: *tag, Status: core.Status(*status)})
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		fmt.Println("no prompts found")
		return nil
	}

	for _, p := range prompts {
		size := promptSize(p)
		tags := ""
		if len(p.Metadata.Tags) > 0 {
			tags = " [" + strings.Join(p.Metadata.Tags, ", ") + "]"
		}
		fmt.Printf("%-30s %-10s %-12s %8s%s\n", p.ID, p.Version, p.Status, units.HumanSize(float64(size)), tags)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	storePath := storeFlag(fs)
	ver := fs.String("version", "", "version (default: latest)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: promptvault show [flags] <prompt-id>")
	}

	store, err := storage.NewFile(*storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.Load(ctx, fs.Arg(0), *ver)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	storePath := storeFlag(fs)
	ver := fs.String("version", "", "version (default: latest)")
	varsJSON := fs.String("vars", "{}", "template variables as JSON")
	schemasDir := fs.String("schemas", "", "directory of schema YAML files")
	inject := fs.Bool("inject-schemas", false, "inject schema requirement blocks")
	noCache := fs.Bool("no-cache", false, "bypass the render cache")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: promptvault render [flags] <prompt-id>")
	}
	if *schemasDir == "" {
		*schemasDir = defaults.SchemasDir
	}

	var vars map[string]any
	if err := json.Unmarshal([]byte(*varsJSON), &vars); err != nil {
		return fmt.Errorf("parsing -vars: %w", err)
	}

	m, err := loadManager(ctx, *storePath, *schemasDir)
	if err != nil {
		return err
	}
	defer m.Close()

	out, err := m.Render(ctx, fs.Arg(0), *ver, vars, manager.RenderOptions{InjectSchemas: *inject, NoCache: *noCache})
	if err != nil {
		return err
	}

	if out.Format == core.FormatChat {
		for _, msg := range out.Messages {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
	} else {
		fmt.Println(out.Text)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	storePath := storeFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: promptvault history [flags] <prompt-id>")
	}

	m, err := loadManager(ctx, *storePath, "")
	if err != nil {
		return err
	}
	defer m.Close()

	history, err := m.History(fs.Arg(0))
	if err != nil {
		return err
	}
	for _, v := range history {
		changelog := v.Changelog
		if changelog == "" {
			changelog = "-"
		}
		fmt.Printf("%-10s %s  %s  %s\n", v.Number, v.CreatedAt.Format("2006-01-02 15:04"), v.Checksum[:12], changelog)
	}
	return nil
}

func runPut(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	storePath := storeFlag(fs)
	file := fs.String("file", "", "prompt definition JSON file (required)")
	changelog := fs.String("changelog", "", "changelog entry for the new version")
	defBump := defaults.DefaultBump
	if defBump == "" {
		defBump = "patch"
	}
	bumpName := fs.String("bump", defBump, "version bump for updates: patch, minor, major")
	schemasDir := fs.String("schemas", "", "directory of schema YAML files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("usage: promptvault put -file <prompt.json>")
	}
	if *schemasDir == "" {
		*schemasDir = defaults.SchemasDir
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var p core.Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parsing %s: %w", *file, err)
	}

	bump, err := parseBump(*bumpName)
	if err != nil {
		return err
	}

	m, err := loadManager(ctx, *storePath, *schemasDir)
	if err != nil {
		return err
	}
	defer m.Close()

	var stored *core.Prompt
	if _, err := m.Get(p.ID, ""); err == nil {
		stored, err = m.Update(ctx, &p, *changelog, bump)
		if err != nil {
			return err
		}
	} else {
		stored, err = m.Create(ctx, &p, *changelog)
		if err != nil {
			return err
		}
	}

	fmt.Printf("stored %s@%s\n", stored.ID, stored.Version)
	return nil
}

func runSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	storePath := storeFlag(fs)
	defLimit := defaults.SearchLimit
	if defLimit <= 0 {
		defLimit = 10
	}
	limit := fs.Int("limit", defLimit, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: promptvault search [flags] <query>")
	}

	m, err := loadManager(ctx, *storePath, "")
	if err != nil {
		return err
	}
	defer m.Close()

	hits, err := m.Search(strings.Join(fs.Args(), " "), *limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, hit := range hits {
		fmt.Printf("%-30s %.3f  %s\n", hit.ID, hit.Score, hit.Description)
	}
	return nil
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	storePath := storeFlag(fs)
	schemasDir := fs.String("schemas", "", "directory of schema YAML files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schemasDir == "" {
		*schemasDir = defaults.SchemasDir
	}

	m, err := loadManager(ctx, *storePath, *schemasDir)
	if err != nil {
		return err
	}
	defer m.Close()

	stop, err := m.Watch()
	if err != nil {
		return err
	}
	log.Printf("👀 Watching %s (ctrl-c to stop)", *storePath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	return stop()
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	setStore := fs.String("set-store", "", "persist a default store directory")
	setSchemas := fs.String("set-schemas", "", "persist a default schemas directory")
	setBump := fs.String("set-bump", "", "persist a default version bump")
	setLimit := fs.Int("set-search-limit", 0, "persist a default search result cap")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cm, err := config.NewManager()
	if err != nil {
		return err
	}
	cfg, err := cm.Load()
	if err != nil {
		return err
	}

	changed := false
	if *setStore != "" {
		cfg.StoreDir = *setStore
		changed = true
	}
	if *setSchemas != "" {
		cfg.SchemasDir = *setSchemas
		changed = true
	}
	if *setBump != "" {
		if _, err := parseBump(*setBump); err != nil {
			return err
		}
		cfg.DefaultBump = *setBump
		changed = true
	}
	if *setLimit > 0 {
		cfg.SearchLimit = *setLimit
		changed = true
	}
	if changed {
		if err := cm.Save(cfg); err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s\n", cm.Path(), out)
	return nil
}

func parseBump(name string) (version.Bump, error) {
	switch name {
	case "patch":
		return version.BumpPatch, nil
	case "minor":
		return version.BumpMinor, nil
	case "major":
		return version.BumpMajor, nil
	}
	return 0, fmt.Errorf("unknown bump %q (want patch, minor, or major)", name)
}

// promptSize approximates a prompt's on-disk footprint for listings.
func promptSize(p *core.Prompt) int {
	data, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(data)
}

