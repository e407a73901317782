package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/boardgate/internal/authz"
	"github.com/danielpatrickdp/boardgate/internal/directory"
	"github.com/danielpatrickdp/boardgate/internal/gallery"
	"github.com/danielpatrickdp/boardgate/internal/recognize"
	"github.com/danielpatrickdp/boardgate/internal/replay"
	"github.com/danielpatrickdp/boardgate/internal/vision"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to boardgate.db (self-probe mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	contextID := flag.String("context", "", "boarding context for self-probe mode")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/boardgate.db --context id")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *contextID)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	if f.Description != "" {
		fmt.Printf("Fixture: %s\n\n", f.Description)
	}

	ctx := context.Background()
	snap, err := gallery.BuildSnapshot(ctx, f.GalleryEntries())
	if err != nil {
		fmt.Fprintf(os.Stderr, "build snapshot: %v\n", err)
		return 2
	}

	frames := make([]replay.Frame, len(f.Frames))
	for i := range f.Frames {
		frames[i] = f.Frames[i].ToFrame()
	}
	results := replay.Replay(ctx, snap, frames, f.ReplayConfig())

	expected := make(map[string]expectation, len(f.Expected))
	for _, e := range f.Expected {
		expected[e.FrameID] = expectation{
			authorized:  e.Authorized,
			identityKey: e.IdentityKey,
			reason:      e.Reason,
		}
	}
	return printComparison(results, expected)
}

// #endregion fixture-mode

// #region db-mode

// runDBMode replays every cached embedding against its own identity: a
// healthy gallery re-matches each vector, and the expected authorization
// follows the live assignment table.
func runDBMode(dbPath, contextID string) int {
	if contextID == "" {
		fmt.Fprintln(os.Stderr, "self-probe mode needs --context")
		return 2
	}

	store, err := directory.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	cache, err := gallery.NewCache(store.DB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open embedding cache: %v\n", err)
		return 2
	}
	cached, err := cache.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load embedding cache: %v\n", err)
		return 2
	}
	if len(cached) == 0 {
		fmt.Fprintln(os.Stderr, "embedding cache is empty; run the daemon or POST /api/refresh first")
		return 2
	}

	entries := make([]gallery.Entry, 0, len(cached))
	for _, e := range cached {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IdentityKey < entries[j].IdentityKey })

	ctx := context.Background()
	snap, err := gallery.BuildSnapshot(ctx, entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build snapshot: %v\n", err)
		return 2
	}

	// Authorization tables from the live store
	idents, err := store.ListIdentities(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list identities: %v\n", err)
		return 2
	}
	identities := make(map[string]bool, len(idents))
	for _, id := range idents {
		identities[id.IdentityKey] = true
	}
	assignments, err := store.ListAssignments(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "list assignments: %v\n", err)
		return 2
	}
	assigned := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		if a.Status == directory.AssignmentActive {
			assigned[a.IdentityKey+"/"+a.ContextID] = true
		}
	}

	var frames []replay.Frame
	expected := make(map[string]expectation)
	for _, e := range entries {
		for vi, vec := range e.Vectors {
			frameID := fmt.Sprintf("%s-%d", e.IdentityKey, vi)
			frames = append(frames, replay.Frame{
				FrameID:   frameID,
				ContextID: contextID,
				Faces:     []vision.Face{{Box: vision.Rect{W: 100, H: 100}, Embedding: vec}},
			})
			exp := expectation{identityKey: e.IdentityKey}
			if assigned[e.IdentityKey+"/"+contextID] {
				exp.authorized = true
			} else {
				exp.reason = string(authz.ReasonNotAssigned)
			}
			expected[frameID] = exp
		}
	}

	config := replay.ReplayConfig{
		Recognize:  recognize.DefaultConfig(),
		Identities: identities,
		Assigned:   assigned,
	}
	results := replay.Replay(ctx, snap, frames, config)
	return printComparison(results, expected)
}

// #endregion db-mode

// #region output

type expectation struct {
	authorized  bool
	identityKey string
	reason      string
}

// printComparison outputs the comparison table and returns the exit code:
// 0 when every checked frame agrees, 1 on any divergence.
func printComparison(results []replay.Result, expected map[string]expectation) int {
	fmt.Printf("%-16s| %-10s| %-26s| %-26s| %s\n", "Frame", "Context", "Expected", "Replayed", "Match")
	fmt.Printf("%-16s+%-11s+%-27s+%-27s+%s\n",
		"----------------", "-----------", "---------------------------", "---------------------------", "------")

	matches, diverge, unchecked := 0, 0, 0
	for _, r := range results {
		got := outcomeLabel(r.Authorized, r.IdentityKey, r.Reason)
		expLabel, match := "—", "—"
		if exp, ok := expected[r.FrameID]; ok {
			expLabel = outcomeLabel(exp.authorized, exp.identityKey, exp.reason)
			if exp.authorized == r.Authorized && exp.identityKey == r.IdentityKey &&
				(exp.reason == "" || exp.reason == r.Reason) {
				match = "OK"
				matches++
			} else {
				match = "DIFF"
				diverge++
			}
		} else {
			unchecked++
		}
		fmt.Printf("%-16s| %-10s| %-26s| %-26s| %s\n", r.FrameID, r.ContextID, expLabel, got, match)
	}

	sum := replay.Summarize(results)
	fmt.Printf("\nSummary: %d frames, %d granted, %d denied\n", sum.TotalFrames, sum.Granted, sum.Denied)
	if len(sum.ByReason) > 0 {
		reasons := make([]string, 0, len(sum.ByReason))
		for r := range sum.ByReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("  %-18s %d\n", r, sum.ByReason[r])
		}
	}
	fmt.Printf("Agreement: %d match, %d diverge, %d unchecked\n", matches, diverge, unchecked)

	if diverge > 0 {
		return 1
	}
	return 0
}

// outcomeLabel renders one decision for the table.
func outcomeLabel(authorized bool, identityKey, reason string) string {
	if authorized {
		return "grant " + identityKey
	}
	if identityKey != "" {
		return fmt.Sprintf("deny %s (%s)", reason, identityKey)
	}
	return "deny " + reason
}

// #endregion output
