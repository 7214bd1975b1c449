package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/sigilgate/internal/geometry"
	"github.com/nvandessel/sigilgate/internal/onboarding"
	"github.com/nvandessel/sigilgate/internal/sequencer"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/verifier"
	"github.com/nvandessel/sigilgate/internal/visualization"
)

// errNoSession is returned by tools that need a session before sigil_activate.
var errNoSession = errors.New("no active session, call sigil_activate first")

const sessionResourceURI = "sigilgate://session"

// registerTools registers all sigilgate MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sigil_activate",
		Description: "Start a new onboarding session and activate the sigil verifier",
	}, s.handleSigilActivate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sigil_materialized",
		Description: "Report that the sigil has finished appearing and the attempt may start",
	}, s.handleSigilMaterialized)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sigil_pointer",
		Description: "Send a pointer event (down, move, up, leave) to the verifier",
	}, s.handleSigilPointer)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sigil_state",
		Description: "Get the current attempt and the session events since a sequence number",
	}, s.handleSigilState)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sigil_graph",
		Description: "Render the sigil in DOT (Graphviz) or JSON, overlaid with the current attempt",
	}, s.handleSigilGraph)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "stage_complete",
		Description: "Mark an onboarding stage complete",
	}, s.handleStageComplete)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "stage_jump",
		Description: "Navigate to an onboarding stage",
	}, s.handleStageJump)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "stage_state",
		Description: "Get the onboarding session: stage, progress and gate status",
	}, s.handleStageState)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "gate_upload",
		Description: "Start or cancel the simulated upload gate",
	}, s.handleGateUpload)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "gate_select",
		Description: "Toggle options of the selection gate and optionally confirm",
	}, s.handleGateSelect)
}

// registerResources registers the session snapshot resource.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         sessionResourceURI,
		Name:        "sigilgate-session",
		Description: "The current onboarding session as JSON.",
		MIMEType:    "application/json",
	}, s.handleSessionResource)
}

func (s *Server) handleSessionResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var state SessionState
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		state = sessionState(f.Snapshot(), s.sigilName)
	}); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      sessionResourceURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// withFlow runs fn on the loop with the current flow.
func (s *Server) withFlow(ctx context.Context, fn func(f *onboarding.Flow)) error {
	missing := false
	if err := s.do(ctx, func() {
		if s.flow == nil {
			missing = true
			return
		}
		fn(s.flow)
	}); err != nil {
		return err
	}
	if missing {
		return errNoSession
	}
	return nil
}

// sigilState builds the common sigil_* output. Must run on the loop.
func (s *Server) sigilState(f *onboarding.Flow, since int) SigilStateOutput {
	return SigilStateOutput{
		SessionID: f.ID(),
		State:     attemptState(f.Snapshot().Verifier),
		Events:    s.events.since(since),
		LastSeq:   s.events.latest(),
	}
}

func (s *Server) handleSigilActivate(ctx context.Context, req *sdk.CallToolRequest, args SigilActivateInput) (_ *sdk.CallToolResult, _ SigilActivateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sigil_activate", start, retErr, sanitizeToolParams(map[string]any{
			"sigil": args.Sigil,
		}))
	}()

	if err := s.toolLimiters.Check("sigil_activate"); err != nil {
		return nil, SigilActivateOutput{}, err
	}

	graph, err := s.resolveGraph(ctx, args.Sigil)
	if err != nil {
		return nil, SigilActivateOutput{}, fmt.Errorf("resolve sigil: %w", err)
	}

	var (
		out      SigilActivateOutput
		startErr error
	)
	if err := s.do(ctx, func() {
		flow, err := s.startSession(graph, args.Sigil)
		if err != nil {
			startErr = err
			return
		}
		out = SigilActivateOutput{
			SessionID: flow.ID(),
			Sigil:     args.Sigil,
			Anchors:   len(graph.Anchors()),
			State:     attemptState(flow.Snapshot().Verifier),
		}
	}); err != nil {
		return nil, SigilActivateOutput{}, err
	}
	if startErr != nil {
		return nil, SigilActivateOutput{}, fmt.Errorf("start session: %w", startErr)
	}
	s.logger.Info("onboarding session started", "session", out.SessionID, "sigil", args.Sigil)
	return nil, out, nil
}

func (s *Server) handleSigilMaterialized(ctx context.Context, req *sdk.CallToolRequest, args SigilStateInput) (_ *sdk.CallToolResult, _ SigilStateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sigil_materialized", start, retErr, nil)
	}()

	if err := s.toolLimiters.Check("sigil_materialized"); err != nil {
		return nil, SigilStateOutput{}, err
	}

	var out SigilStateOutput
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		f.MaterializationComplete()
		out = s.sigilState(f, args.Since)
	}); err != nil {
		return nil, SigilStateOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleSigilPointer(ctx context.Context, req *sdk.CallToolRequest, args SigilPointerInput) (_ *sdk.CallToolResult, _ SigilStateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sigil_pointer", start, retErr, sanitizeToolParams(map[string]any{
			"kind": args.Kind,
			"x":    args.X,
			"y":    args.Y,
		}))
	}()

	if err := s.toolLimiters.Check("sigil_pointer"); err != nil {
		return nil, SigilStateOutput{}, err
	}

	kind := strings.ToLower(strings.TrimSpace(args.Kind))
	p := geometry.Pt(args.X, args.Y)
	var apply func(f *onboarding.Flow)
	switch kind {
	case "down":
		apply = func(f *onboarding.Flow) { f.PointerDown(p) }
	case "move":
		apply = func(f *onboarding.Flow) { f.PointerMove(p) }
	case "up":
		apply = func(f *onboarding.Flow) { f.PointerUp(p) }
	case "leave":
		apply = func(f *onboarding.Flow) { f.PointerLeave() }
	default:
		return nil, SigilStateOutput{}, fmt.Errorf("invalid pointer kind %q: must be down, move, up or leave", args.Kind)
	}

	var out SigilStateOutput
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		before := s.events.latest()
		apply(f)
		out = s.sigilState(f, before)
	}); err != nil {
		return nil, SigilStateOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleSigilState(ctx context.Context, req *sdk.CallToolRequest, args SigilStateInput) (_ *sdk.CallToolResult, _ SigilStateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sigil_state", start, retErr, nil)
	}()

	if err := s.toolLimiters.Check("sigil_state"); err != nil {
		return nil, SigilStateOutput{}, err
	}
	if args.Since < 0 {
		return nil, SigilStateOutput{}, fmt.Errorf("since must be >= 0, got %d", args.Since)
	}

	var out SigilStateOutput
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		out = s.sigilState(f, args.Since)
	}); err != nil {
		return nil, SigilStateOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleSigilGraph(ctx context.Context, req *sdk.CallToolRequest, args SigilGraphInput) (_ *sdk.CallToolResult, _ SigilGraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sigil_graph", start, retErr, sanitizeToolParams(map[string]any{
			"format": args.Format,
			"sigil":  args.Sigil,
		}))
	}()

	if err := s.toolLimiters.Check("sigil_graph"); err != nil {
		return nil, SigilGraphOutput{}, err
	}

	formatName := args.Format
	if formatName == "" {
		formatName = string(visualization.FormatJSON)
	}
	format, err := visualization.ParseFormat(formatName)
	if err != nil {
		return nil, SigilGraphOutput{}, err
	}

	var (
		graph   *sigil.Graph
		overlay *verifier.Snapshot
	)
	if args.Sigil != "" {
		graph, err = s.resolveGraph(ctx, args.Sigil)
		if err != nil {
			return nil, SigilGraphOutput{}, fmt.Errorf("resolve sigil: %w", err)
		}
	} else {
		if err := s.do(ctx, func() {
			if s.flow == nil {
				return
			}
			graph = s.flow.Graph()
			snap := s.flow.Snapshot().Verifier
			overlay = &snap
		}); err != nil {
			return nil, SigilGraphOutput{}, err
		}
		if graph == nil {
			if graph, err = s.settings.Graph(); err != nil {
				return nil, SigilGraphOutput{}, fmt.Errorf("configured sigil: %w", err)
			}
		}
	}

	out := SigilGraphOutput{
		Format:  string(format),
		Anchors: len(graph.Anchors()),
		Edges:   graph.NumEdges(),
	}
	switch format {
	case visualization.FormatDOT:
		out.Graph = visualization.RenderDOT(graph, overlay)
	default:
		out.Graph = visualization.RenderJSON(graph, overlay)
	}
	return nil, out, nil
}

// parseStage accepts any configured stage or "finished".
func (s *Server) parseStage(name string) (sequencer.Stage, error) {
	stage := sequencer.Stage(strings.ToLower(strings.TrimSpace(name)))
	if stage == sequencer.Finished {
		return stage, nil
	}
	for _, known := range s.settings.Sequencer.Stages {
		if string(stage) == known {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q: must be one of %s, %s",
		name, strings.Join(s.settings.Sequencer.Stages, ", "), sequencer.Finished)
}

func (s *Server) handleStageComplete(ctx context.Context, req *sdk.CallToolRequest, args StageInput) (_ *sdk.CallToolResult, _ StageStateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("stage_complete", start, retErr, sanitizeToolParams(map[string]any{
			"stage": args.Stage,
		}))
	}()

	if err := s.toolLimiters.Check("stage_complete"); err != nil {
		return nil, StageStateOutput{}, err
	}
	stage, err := s.parseStage(args.Stage)
	if err != nil {
		return nil, StageStateOutput{}, err
	}

	var out StageStateOutput
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		f.MarkComplete(stage)
		snap := f.Snapshot()
		out = StageStateOutput{
			Accepted: slices.Contains(snap.Completed, stage) || snap.Stage == sequencer.Finished,
			Session:  sessionState(snap, s.sigilName),
		}
	}); err != nil {
		return nil, StageStateOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleStageJump(ctx context.Context, req *sdk.CallToolRequest, args StageInput) (_ *sdk.CallToolResult, _ StageStateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("stage_jump", start, retErr, sanitizeToolParams(map[string]any{
			"stage": args.Stage,
		}))
	}()

	if err := s.toolLimiters.Check("stage_jump"); err != nil {
		return nil, StageStateOutput{}, err
	}
	stage, err := s.parseStage(args.Stage)
	if err != nil {
		return nil, StageStateOutput{}, err
	}

	var out StageStateOutput
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		out.Accepted = f.JumpTo(stage)
		out.Session = sessionState(f.Snapshot(), s.sigilName)
	}); err != nil {
		return nil, StageStateOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleStageState(ctx context.Context, req *sdk.CallToolRequest, args StageStateInput) (_ *sdk.CallToolResult, _ StageStateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("stage_state", start, retErr, nil)
	}()

	if err := s.toolLimiters.Check("stage_state"); err != nil {
		return nil, StageStateOutput{}, err
	}

	var out StageStateOutput
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		out = StageStateOutput{Accepted: true, Session: sessionState(f.Snapshot(), s.sigilName)}
	}); err != nil {
		return nil, StageStateOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleGateUpload(ctx context.Context, req *sdk.CallToolRequest, args GateUploadInput) (_ *sdk.CallToolResult, _ StageStateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("gate_upload", start, retErr, sanitizeToolParams(map[string]any{
			"action": args.Action,
		}))
	}()

	if err := s.toolLimiters.Check("gate_upload"); err != nil {
		return nil, StageStateOutput{}, err
	}

	action := strings.ToLower(strings.TrimSpace(args.Action))
	if action != "start" && action != "cancel" {
		return nil, StageStateOutput{}, fmt.Errorf("invalid upload action %q: must be start or cancel", args.Action)
	}

	var out StageStateOutput
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		if action == "start" {
			f.StartUpload()
		} else {
			f.CancelUpload()
		}
		snap := f.Snapshot()
		out = StageStateOutput{
			Accepted: action == "cancel" || snap.Upload.Running || snap.Upload.Completed,
			Session:  sessionState(snap, s.sigilName),
		}
	}); err != nil {
		return nil, StageStateOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleGateSelect(ctx context.Context, req *sdk.CallToolRequest, args GateSelectInput) (_ *sdk.CallToolResult, _ StageStateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("gate_select", start, retErr, sanitizeToolParams(map[string]any{
			"toggle":  args.Toggle,
			"confirm": args.Confirm,
		}))
	}()

	if err := s.toolLimiters.Check("gate_select"); err != nil {
		return nil, StageStateOutput{}, err
	}

	var out StageStateOutput
	if err := s.withFlow(ctx, func(f *onboarding.Flow) {
		out.Accepted = true
		for _, id := range args.Toggle {
			if !f.ToggleSelection(id) {
				out.Accepted = false
			}
		}
		if args.Confirm {
			out.Accepted = f.ConfirmSelection() && out.Accepted
		}
		out.Session = sessionState(f.Snapshot(), s.sigilName)
	}); err != nil {
		return nil, StageStateOutput{}, err
	}
	return nil, out, nil
}
