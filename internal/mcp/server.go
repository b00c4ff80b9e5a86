package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/ideas/internal/idea"
	"github.com/kokistudios/ideas/internal/recall"
	"github.com/kokistudios/ideas/internal/render"
)

// Server wraps the MCP server with an idea board. It holds a single
// composition form, so an edit started by one call can be submitted by a
// later one.
type Server struct {
	ideas  *idea.Store
	server *mcp.Server

	mu    sync.Mutex
	form  *idea.Form
	lease *editLease
	ttl   time.Duration
	now   func() time.Time
}

// NewServer creates a new ideas MCP server.
func NewServer(ideas *idea.Store, version string) *Server {
	s := &Server{
		ideas: ideas,
		form:  idea.NewForm(ideas),
		ttl:   DefaultEditTTL,
		now:   time.Now,
	}

	impl := &mcp.Implementation{
		Name:    "ideas",
		Version: version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ideas_list",
		Description: "List the ideas on the board, newest first. Includes seed ideas that have not been deleted. Call with no params for everything, or pass limit.",
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ideas_search",
		Description: "Search ideas by id, title, or note text. Results are ranked: exact id and title matches first, then title substrings, then note text. Returns compact summaries; use ideas_show for the full note.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ideas_show",
		Description: "Get one idea by ID, with its note as both sanitized HTML and plain text.",
	}, s.handleShow)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ideas_create",
		Description: "Post a new idea. The title is required. The note may contain HTML; URLs are linkified and unsafe markup is stripped. " +
			"The result lists similar_existing ideas with near-identical titles; mention them to the user.",
	}, s.handleCreate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ideas_update",
		Description: "Replace the title and note of an existing idea in one call. Editing a seed idea stores an override under the same ID.",
	}, s.handleUpdate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ideas_delete",
		Description: "Delete an idea by ID. Seed ideas are suppressed and will not come back. " +
			"BEFORE CALLING: confirm with the user; deletion cannot be undone.",
	}, s.handleDelete)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ideas_edit_start",
		Description: "Open an idea in the composition form. Returns the current title and note as the draft. " +
			"Follow with ideas_edit_submit to save or ideas_edit_cancel to discard. Starting another edit switches the target.",
	}, s.handleEditStart)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ideas_edit_submit",
		Description: "Submit the composition form. Saves over the idea opened with ideas_edit_start, " +
			"or posts a new idea when no edit is open. The form is cleared afterwards.",
	}, s.handleEditSubmit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ideas_edit_cancel",
		Description: "Discard the open edit without saving anything.",
	}, s.handleEditCancel)
}

// IdeaView is the tool output for a single idea.
type IdeaView struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Note    string `json:"note,omitempty"`
	Text    string `json:"text,omitempty"`
	Created string `json:"created"`
	Recency string `json:"recency,omitempty"`
	Seed    bool   `json:"seed"`
}

func (s *Server) view(it idea.Idea) IdeaView {
	v := IdeaView{
		ID:    it.ID,
		Title: it.Title,
		Note:  it.Note,
		Text:  render.NoteMarkdown(it.Note),
		Seed:  idea.IsSeedID(it.ID),
	}
	if !it.Created.IsZero() {
		v.Created = it.Created.Format(time.RFC3339)
		v.Recency = formatRelativeTime(it.Created, s.now())
	}
	return v
}

// warning describes the last failed write, if any.
func (s *Server) warning() string {
	if err := s.ideas.LastWriteError(); err != nil {
		return fmt.Sprintf("Change applied for this session but not saved: %v", err)
	}
	return ""
}

// ListArgs defines input for ideas_list.
type ListArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of ideas to return (default all)"`
}

// ListResult is the output of ideas_list.
type ListResult struct {
	Ideas   []IdeaView `json:"ideas"`
	Total   int        `json:"total"`
	Message string     `json:"message,omitempty"`
}

func (s *Server) handleList(ctx context.Context, req *mcp.CallToolRequest, args ListArgs) (*mcp.CallToolResult, any, error) {
	all := idea.SortNewestFirst(s.ideas.LoadAll(ctx))
	out := ListResult{Total: len(all), Ideas: []IdeaView{}}
	if len(all) == 0 {
		out.Message = "No ideas yet. Use ideas_create to post one."
		return nil, out, nil
	}
	if args.Limit > 0 && args.Limit < len(all) {
		all = all[:args.Limit]
	}
	for _, it := range all {
		out.Ideas = append(out.Ideas, s.view(it))
	}
	return nil, out, nil
}

// SearchArgs defines input for ideas_search.
type SearchArgs struct {
	Query     string `json:"query,omitempty" jsonschema:"Text to match; empty returns the most recent ideas"`
	SeedsOnly bool   `json:"seeds_only,omitempty" jsonschema:"Only search seed ideas"`
	UserOnly  bool   `json:"user_only,omitempty" jsonschema:"Only search ideas created by the user"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 20)"`
}

// SearchHit is a compact search result.
type SearchHit struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	MatchTier string `json:"match_tier"`
	Recency   string `json:"recency,omitempty"`
}

// SearchResult is the output of ideas_search.
type SearchResult struct {
	Hits    []SearchHit `json:"hits"`
	Message string      `json:"message,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
	if args.SeedsOnly && args.UserOnly {
		return nil, nil, fmt.Errorf("seeds_only and user_only are mutually exclusive")
	}
	r := recall.Search(s.ideas.LoadAll(ctx), recall.Query{
		Text:       args.Query,
		SeedsOnly:  args.SeedsOnly,
		UserOnly:   args.UserOnly,
		MaxResults: args.Limit,
	})

	out := SearchResult{Hits: []SearchHit{}}
	if len(r.Ideas) == 0 {
		out.Message = recall.FormatTerminal(r)
		return nil, out, nil
	}
	for _, si := range r.Ideas {
		hit := SearchHit{ID: si.ID, Title: si.Title, MatchTier: si.Tier.TierLabel()}
		if !si.Created.IsZero() {
			hit.Recency = formatRelativeTime(si.Created, s.now())
		}
		out.Hits = append(out.Hits, hit)
	}
	return nil, out, nil
}

// ShowArgs defines input for ideas_show.
type ShowArgs struct {
	ID string `json:"id" jsonschema:"The idea ID (e.g. seed-0-my-idea or a UUID)"`
}

func (s *Server) handleShow(ctx context.Context, req *mcp.CallToolRequest, args ShowArgs) (*mcp.CallToolResult, any, error) {
	if args.ID == "" {
		return nil, nil, fmt.Errorf("idea ID is required")
	}
	it, err := s.ideas.Get(ctx, args.ID)
	if err != nil {
		return nil, nil, err
	}
	return nil, s.view(it), nil
}

// CreateArgs defines input for ideas_create.
type CreateArgs struct {
	Title string `json:"title" jsonschema:"Idea title (required)"`
	Note  string `json:"note,omitempty" jsonschema:"Optional note; HTML is allowed and sanitized"`
}

// MutationResult is the output of the tools that change the board.
type MutationResult struct {
	Idea    *IdeaView             `json:"idea,omitempty"`
	Similar []recall.SimilarMatch `json:"similar_existing,omitempty"`
	State   string                `json:"form_state,omitempty"`
	Warning string                `json:"warning,omitempty"`
	Message string                `json:"message,omitempty"`
}

func (s *Server) handleCreate(ctx context.Context, req *mcp.CallToolRequest, args CreateArgs) (*mcp.CallToolResult, any, error) {
	similar := recall.FastSimilarityCheck(s.ideas.LoadAll(ctx), args.Title)
	it, err := idea.NewForm(s.ideas).Submit(ctx, args.Title, args.Note)
	if err != nil {
		return nil, nil, err
	}
	v := s.view(it)
	return nil, MutationResult{Idea: &v, Similar: similar, Warning: s.warning()}, nil
}

// UpdateArgs defines input for ideas_update.
type UpdateArgs struct {
	ID    string `json:"id" jsonschema:"The idea ID to update"`
	Title string `json:"title" jsonschema:"New title (required)"`
	Note  string `json:"note,omitempty" jsonschema:"New note; replaces the existing note"`
}

func (s *Server) handleUpdate(ctx context.Context, req *mcp.CallToolRequest, args UpdateArgs) (*mcp.CallToolResult, any, error) {
	if args.ID == "" {
		return nil, nil, fmt.Errorf("idea ID is required")
	}
	form := idea.NewForm(s.ideas)
	if _, err := form.Edit(ctx, args.ID); err != nil {
		return nil, nil, err
	}
	it, err := form.Submit(ctx, args.Title, args.Note)
	if err != nil {
		return nil, nil, err
	}
	v := s.view(it)
	return nil, MutationResult{Idea: &v, Warning: s.warning()}, nil
}

// DeleteArgs defines input for ideas_delete.
type DeleteArgs struct {
	ID string `json:"id" jsonschema:"The idea ID to delete"`
}

func (s *Server) handleDelete(ctx context.Context, req *mcp.CallToolRequest, args DeleteArgs) (*mcp.CallToolResult, any, error) {
	if args.ID == "" {
		return nil, nil, fmt.Errorf("idea ID is required")
	}
	if _, err := s.ideas.Get(ctx, args.ID); err != nil {
		return nil, nil, err
	}
	s.ideas.Delete(ctx, args.ID)

	s.mu.Lock()
	if s.form.State() == idea.Editing && s.form.EditingID() == args.ID {
		s.form.Cancel()
		s.lease = nil
	}
	s.mu.Unlock()

	return nil, MutationResult{
		Message: fmt.Sprintf("Deleted %s", args.ID),
		Warning: s.warning(),
	}, nil
}

// EditStartArgs defines input for ideas_edit_start.
type EditStartArgs struct {
	ID string `json:"id" jsonschema:"The idea ID to open for editing"`
}

// EditStartResult is the output of ideas_edit_start.
type EditStartResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Note      string `json:"note"`
	State     string `json:"form_state"`
	Submit    string `json:"submit_label"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleEditStart(ctx context.Context, req *mcp.CallToolRequest, args EditStartArgs) (*mcp.CallToolResult, any, error) {
	if args.ID == "" {
		return nil, nil, fmt.Errorf("idea ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.form.Edit(ctx, args.ID); err != nil {
		return nil, nil, err
	}
	s.lease = newEditLease(args.ID, s.now(), s.ttl)

	draft := s.form.Draft()
	return nil, EditStartResult{
		ID:        args.ID,
		Title:     draft.Title,
		Note:      draft.Note,
		State:     s.form.State().String(),
		Submit:    s.form.SubmitLabel(),
		ExpiresAt: s.lease.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// EditSubmitArgs defines input for ideas_edit_submit.
type EditSubmitArgs struct {
	Title string `json:"title" jsonschema:"Title to save (required)"`
	Note  string `json:"note,omitempty" jsonschema:"Note to save; HTML is allowed and sanitized"`
}

func (s *Server) handleEditSubmit(ctx context.Context, req *mcp.CallToolRequest, args EditSubmitArgs) (*mcp.CallToolResult, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lease.check(s.now()); err != nil {
		s.form.Cancel()
		s.lease = nil
		return nil, nil, err
	}

	it, err := s.form.Submit(ctx, args.Title, args.Note)
	if err != nil {
		return nil, nil, err
	}
	s.lease = nil

	v := s.view(it)
	return nil, MutationResult{
		Idea:    &v,
		State:   s.form.State().String(),
		Warning: s.warning(),
	}, nil
}

// EditCancelArgs defines input for ideas_edit_cancel.
type EditCancelArgs struct{}

func (s *Server) handleEditCancel(ctx context.Context, req *mcp.CallToolRequest, args EditCancelArgs) (*mcp.CallToolResult, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := "No edit in progress"
	if s.form.State() == idea.Editing {
		msg = fmt.Sprintf("Discarded edit of %s", s.form.EditingID())
	}
	s.form.Cancel()
	s.lease = nil

	return nil, MutationResult{State: s.form.State().String(), Message: msg}, nil
}

func formatRelativeTime(t, now time.Time) string {
	duration := now.Sub(t)

	if duration < time.Hour {
		mins := int(duration.Minutes())
		if mins <= 1 {
			return "just now"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	}
	if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	if days < 30 {
		return fmt.Sprintf("%d days ago", days)
	}
	return t.Format("2006-01-02")
}
