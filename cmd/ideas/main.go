package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/ideas/internal/bundle"
	"github.com/kokistudios/ideas/internal/idea"
	"github.com/kokistudios/ideas/internal/kv"
	ideasmcp "github.com/kokistudios/ideas/internal/mcp"
	"github.com/kokistudios/ideas/internal/recall"
	"github.com/kokistudios/ideas/internal/render"
	"github.com/kokistudios/ideas/internal/seed"
	"github.com/kokistudios/ideas/internal/store"
	"github.com/kokistudios/ideas/internal/ui"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

func main() {
	var noColor, verbose bool

	rootCmd := &cobra.Command{
		Use:   "ideas",
		Short: "ideas: a personal idea board",
		Long:  "Keep a board of ideas: a read-only seed collection merged with the ideas you post, edit, and delete.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor)
			ui.SetVerbose(verbose)
		},
	}

	rootCmd.Version = buildVersion()
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log degraded reads and other debug detail")

	// Command groups
	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "board", Title: "Board Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	for _, c := range []*cobra.Command{initCmd(), doctorCmd()} {
		c.GroupID = "core"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{listCmd(), searchCmd(), showCmd(), postCmd(), editCmd(), rmCmd(), exportCmd(), importCmd()} {
		c.GroupID = "board"
		rootCmd.AddCommand(c)
	}
	configC := configCmd()
	configC.GroupID = "config"
	rootCmd.AddCommand(configC)

	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(mcpServeCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Initialize IDEAS_HOME",
		Long:    "Create the IDEAS_HOME directory (~/.ideas by default) with a default config.yaml. Run this once before using any other ideas commands.",
		Example: "  ideas init\n  ideas init --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()
			if err := store.Init(home, force); err != nil {
				return err
			}
			ui.Success("ideas initialized")
			ui.Detail("Home:", home)
			ui.Info(ui.Dim("Point at a seed dataset with 'ideas config set seed.source <path-or-url>'."))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if IDEAS_HOME already exists")
	return cmd
}

func loadStore() (*store.Store, error) {
	s, err := store.Load(store.Home())
	if err != nil {
		return nil, fmt.Errorf("ideas not initialized, run 'ideas init' first: %w", err)
	}
	return s, nil
}

// board bundles what a command needs to read and change the idea board.
type board struct {
	home    *store.Store
	storage kv.Storage
	ideas   *idea.Store
}

func (b *board) Close() {
	if err := b.storage.Close(); err != nil {
		ui.Logger.Debug("closing storage", "err", err)
	}
}

func seedTimeout(s *store.Store) time.Duration {
	return time.Duration(s.Config.Seed.TimeoutSeconds) * time.Second
}

func loadBoard() (*board, error) {
	s, err := loadStore()
	if err != nil {
		return nil, err
	}
	storage, err := kv.Open(s)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", s.Config.Storage.Backend, err)
	}
	ideas := idea.NewStore(storage, seed.Open(s.Config.Seed.Source, seedTimeout(s)), idea.WithLogger(ui.Logger))
	ideas.OnWriteError = func(key string, err error) {
		ui.Warning("This change is visible now but was not saved and will be lost when the command exits.")
	}
	return &board{home: s, storage: storage, ideas: ideas}, nil
}

// loadAll reads the merged board, with a spinner while a remote seed source
// is fetched.
func (b *board) loadAll(ctx context.Context) []idea.Idea {
	src := b.home.Config.Seed.Source
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		sp := ui.NewSpinner("Fetching seed ideas...")
		defer sp.Stop()
	}
	return b.ideas.LoadAll(ctx)
}

func listCmd() *cobra.Command {
	var asHTML, asTable bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ideas, newest first",
		Long:  "List every idea on the board, newest first. Seed ideas appear unless deleted; edited seeds show your version.",
		Example: `  ideas list
  ideas list --limit 5
  ideas list --table
  ideas list --html > board.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			all := idea.SortNewestFirst(b.loadAll(cmd.Context()))
			if limit > 0 && limit < len(all) {
				all = all[:limit]
			}

			switch {
			case asHTML:
				out, err := render.HTMLList(all)
				if err != nil {
					return err
				}
				fmt.Println(out)
			case asTable:
				if len(all) == 0 {
					ui.EmptyState("No ideas yet. Post one with 'ideas post <title>'.")
					return nil
				}
				var rows [][]string
				for _, it := range all {
					rows = append(rows, []string{it.ID, truncate(it.Title, 40), it.Created.Local().Format("2006-01-02 15:04")})
				}
				ui.Table([]string{"ID", "TITLE", "CREATED"}, rows)
			default:
				ui.RenderMarkdown(render.Markdown(all), b.home.Config.Render.WordWrap)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print the board as HTML")
	cmd.Flags().BoolVar(&asTable, "table", false, "Print a compact table of ids and titles")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many ideas")
	return cmd
}

// truncate shortens s to at most n runes, marking the cut with "..".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ".."
}

func searchCmd() *cobra.Command {
	var seedsOnly, userOnly bool
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find ideas by id, title, or note text",
		Long:  "Search the board. Exact id and title matches rank first, then title substrings, then note text. With no query, shows the most recent ideas.",
		Example: `  ideas search garden
  ideas search --user "reading list"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seedsOnly && userOnly {
				return fmt.Errorf("--seeds and --user are mutually exclusive")
			}
			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			r := recall.Search(b.loadAll(cmd.Context()), recall.Query{
				Text:       strings.Join(args, " "),
				SeedsOnly:  seedsOnly,
				UserOnly:   userOnly,
				MaxResults: limit,
			})
			if len(r.Ideas) == 0 {
				ui.EmptyState(recall.FormatTerminal(r))
				return nil
			}

			var rows [][]string
			for _, si := range r.Ideas {
				tier := si.Tier.TierLabel()
				if si.Tier.IsStrong() {
					tier = ui.Green(tier)
				}
				rows = append(rows, []string{si.ID, tier, si.Title})
			}
			ui.Table([]string{"ID", "MATCH", "TITLE"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seedsOnly, "seeds", false, "Only search seed ideas")
	cmd.Flags().BoolVar(&userOnly, "user", false, "Only search ideas you created")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	return cmd
}

func showCmd() *cobra.Command {
	var asHTML bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			it, err := b.ideas.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asHTML {
				out, err := render.HTMLCard(it)
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}
			ui.RenderMarkdown(render.MarkdownCard(it), b.home.Config.Render.WordWrap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print the idea card as HTML")
	return cmd
}

func postCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "post <title>",
		Short: "Post a new idea",
		Long:  "Post a new idea. The note may contain HTML; URLs are turned into links and unsafe markup is stripped.",
		Example: `  ideas post "Write a zine"
  ideas post "Reading list" --note "start with www.example.com/books"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			title := strings.Join(args, " ")
			similar := recall.FastSimilarityCheck(b.ideas.LoadAll(cmd.Context()), title)

			it, err := idea.NewForm(b.ideas).Submit(cmd.Context(), title, note)
			if err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Posted %s", ui.Bold(it.Title)))
			ui.Detail("ID:", it.ID)
			for _, m := range similar {
				ui.Warning(fmt.Sprintf("Similar idea already on the board: %s %s", ui.Bold(m.Title), ui.Dim("("+m.ID+", "+m.Confidence+")")))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Optional note (HTML allowed)")
	return cmd
}

func editCmd() *cobra.Command {
	var title, note string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an idea's title or note",
		Long:  "Edit an idea. Flags that are not given keep their current value. Editing a seed idea saves your version under the same id.",
		Example: `  ideas edit seed-0-my-idea --title "Better title"
  ideas edit 0190d3c2-... --note ""`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("title") && !cmd.Flags().Changed("note") {
				return fmt.Errorf("nothing to change: pass --title and/or --note")
			}

			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			form := idea.NewForm(b.ideas)
			if _, err := form.Edit(cmd.Context(), args[0]); err != nil {
				return err
			}
			draft := form.Draft()
			if cmd.Flags().Changed("title") {
				draft.Title = title
			}
			if cmd.Flags().Changed("note") {
				draft.Note = note
			}

			it, err := form.Submit(cmd.Context(), draft.Title, draft.Note)
			if err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Saved %s", ui.Bold(it.Title)))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&note, "note", "", "New note (HTML allowed)")
	return cmd
}

func rmCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an idea",
		Long:    "Delete an idea. Deleted seed ideas stay hidden even if the seed dataset still lists them.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			it, err := b.ideas.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !yes {
				ok, err := ui.Confirm(fmt.Sprintf("Delete %q?", it.Title))
				if err != nil {
					return err
				}
				if !ok {
					ui.Info("Cancelled.")
					return nil
				}
			}

			if err := render.Dispatch(cmd.Context(), idea.NewForm(b.ideas), render.Event{ID: it.ID, Action: render.ActionDelete}); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Deleted %s", ui.Bold(it.Title)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit ideas configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(s.Config)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  fmt.Sprintf("Set an ideas configuration value. Valid keys: %s.", strings.Join(store.ConfigKeys, ", ")),
		Example: `  ideas config set storage.backend sqlite
  ideas config set storage.redis_url redis://localhost:6379/0
  ideas config set seed.source https://example.com/ideas.json`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: store.ConfigKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := s.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check health of IDEAS_HOME, storage, and the seed source",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()

			if fix {
				ui.CommandBanner("DOCTOR", "repair mode")
				fixed := store.FixIssues(home)
				for _, f := range fixed {
					ui.Success(fmt.Sprintf("[FIXED] %s", f))
				}
				if len(fixed) == 0 {
					ui.EmptyState("Nothing to fix.")
				}
			} else {
				ui.CommandBanner("DOCTOR", "health check")
			}

			issues := store.CheckHealth(home)
			issues = append(issues, store.CheckStorageIntegrity(home)...)
			if len(issues) == 0 {
				issues = append(issues, checkBoard(cmd.Context())...)
			}

			if len(issues) == 0 {
				ui.Success("Everything looks good")
				os.Exit(0)
			}

			hasError := false
			for _, issue := range issues {
				if issue.Severity == "error" {
					ui.Error(fmt.Sprintf("[ERR]  %s", issue.Message))
					hasError = true
				} else {
					ui.Warning(fmt.Sprintf("[WARN] %s", issue.Message))
				}
			}

			if hasError {
				os.Exit(2)
			}
			os.Exit(1)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Repair missing files and set aside a corrupt storage.json")
	return cmd
}

// checkBoard opens the configured backend and seed source and reports what
// would silently degrade at runtime.
func checkBoard(ctx context.Context) []store.Issue {
	var issues []store.Issue
	b, err := loadBoard()
	if err != nil {
		return append(issues, store.Issue{Severity: "error", Message: err.Error()})
	}
	defer b.Close()

	if _, err := b.ideas.Stored(ctx); err != nil {
		issues = append(issues, store.Issue{Severity: "warning", Message: err.Error()})
	}
	if _, err := b.ideas.DeletedIDs(ctx); err != nil {
		issues = append(issues, store.Issue{Severity: "warning", Message: err.Error()})
	}
	if b.home.Config.Seed.Source != "" {
		if _, err := b.ideas.Seeds(ctx); err != nil {
			issues = append(issues, store.Issue{Severity: "warning", Message: fmt.Sprintf("%v (seed ideas will be empty)", err)})
		}
	}
	return issues
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Long:      "Generate shell completion scripts for bash, zsh, or fish. Output the script to stdout for sourcing in your shell profile.",
		Example:   "  ideas completion bash > ~/.bashrc.d/ideas\n  ideas completion zsh > ~/.zfunc/_ideas\n  ideas completion fish > ~/.config/fish/completions/ideas.fish",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", args[0])
			}
		},
	}
}

func exportCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your ideas to a portable .ideas bundle",
		Long: `Export the ideas you created or edited, and the seed ideas you deleted,
to a portable .ideas bundle file. Seed ideas themselves are not exported;
they come from the seed source.`,
		Example: `  ideas export
  ideas export -o ~/Desktop/board.ideas`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			ui.Status("Exporting ideas...")

			outPath, err := bundle.Export(cmd.Context(), b.ideas, b.home.Config.Storage.Backend, outputPath)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			info, _ := os.Stat(outPath)
			sizeStr := ""
			if info != nil {
				sizeStr = fmt.Sprintf(" (%d bytes)", info.Size())
			}

			ui.Success(fmt.Sprintf("Exported to %s%s", outPath, sizeStr))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: ideas-<timestamp>.ideas)")
	return cmd
}

func importCmd() *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "import <bundle-path>",
		Short: "Merge a .ideas bundle into your board",
		Long: `Import a .ideas bundle. Ideas in the bundle replace ideas with the same id
and are added otherwise. Deleted seed ids are added to yours.

Use --preview to see what will be imported without making changes.`,
		Example: `  ideas import board.ideas
  ideas import ~/Downloads/board.ideas --preview`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundlePath := args[0]

			if preview {
				manifest, err := bundle.Preview(bundlePath)
				if err != nil {
					return fmt.Errorf("failed to read bundle: %w", err)
				}

				ui.CommandBanner("IMPORT PREVIEW", bundlePath)
				ui.KeyValue("Exported at:", manifest.ExportedAt.Format("2006-01-02 15:04:05"))
				ui.KeyValue("Backend:    ", manifest.Backend)
				ui.KeyValue("Ideas:      ", fmt.Sprintf("%d", manifest.StoredCount))
				ui.KeyValue("Deleted:    ", fmt.Sprintf("%d", manifest.DeletedCount))

				ui.Info("Use 'ideas import' without --preview to import this bundle.")
				return nil
			}

			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			ui.Status(fmt.Sprintf("Importing from %s...", bundlePath))

			result, err := bundle.Import(cmd.Context(), b.ideas, bundlePath)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			ui.Success("Imported bundle")
			ui.KeyValue("Added:     ", fmt.Sprintf("%d", result.Added))
			ui.KeyValue("Replaced:  ", fmt.Sprintf("%d", result.Replaced))
			ui.KeyValue("Suppressed:", fmt.Sprintf("%d", result.Suppressed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Preview bundle contents without importing")
	return cmd
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "mcp-serve",
		Short:  "Run ideas as an MCP server",
		Long:   "Start ideas as a Model Context Protocol (MCP) server over stdio, so MCP-compatible tools can read and edit the board.",
		Hidden: true, // Not typically called directly by users
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard()
			if err != nil {
				return err
			}
			defer b.Close()

			server := ideasmcp.NewServer(b.ideas, version)
			return server.Run(cmd.Context())
		},
	}
}
