package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/boardgate/internal/authz"
	"github.com/danielpatrickdp/boardgate/internal/directory"
	"github.com/danielpatrickdp/boardgate/internal/gallery"
	"github.com/danielpatrickdp/boardgate/internal/recognize"
	"github.com/danielpatrickdp/boardgate/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to boardgate.db")
	outPath := flag.String("out", "", "output fixture JSON path")
	contextID := flag.String("context", "", "boarding context the probes target")
	flag.Parse()

	if *dbPath == "" || *outPath == "" || *contextID == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/boardgate.db --out path/to/fixture.json --context id")
		os.Exit(2)
	}

	if err := run(*dbPath, *outPath, *contextID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, outPath, contextID string) error {
	store, err := directory.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	cache, err := gallery.NewCache(store.DB())
	if err != nil {
		return fmt.Errorf("open embedding cache: %w", err)
	}
	cached, err := cache.Load()
	if err != nil {
		return fmt.Errorf("load embedding cache: %w", err)
	}
	if len(cached) == 0 {
		return fmt.Errorf("embedding cache is empty; run the daemon or POST /api/refresh first")
	}

	entries := make([]gallery.Entry, 0, len(cached))
	for _, e := range cached {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IdentityKey < entries[j].IdentityKey })

	ctx := context.Background()
	idents, err := store.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	assignments, err := store.ListAssignments(ctx, "")
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}

	fixture := buildFixture(entries, idents, assignments, contextID)
	return writeFixture(fixture, outPath)
}

// #endregion extract

// #region build

// buildFixture turns the cached gallery into a self-probe fixture: every
// vector becomes one frame expected to re-match its own identity, with the
// authorization expectation read off the current assignment table.
func buildFixture(entries []gallery.Entry, idents []directory.Identity, assignments []directory.Assignment, contextID string) replay.Fixture {
	identities := make([]string, 0, len(idents))
	for _, id := range idents {
		identities = append(identities, id.IdentityKey)
	}

	assigned := make(map[string]bool)
	var fixtureAssignments []replay.FixtureAssignment
	for _, a := range assignments {
		if a.Status != directory.AssignmentActive {
			continue
		}
		assigned[a.IdentityKey+"/"+a.ContextID] = true
		fixtureAssignments = append(fixtureAssignments, replay.FixtureAssignment{
			IdentityKey: a.IdentityKey,
			ContextID:   a.ContextID,
		})
	}

	cfg := recognize.DefaultConfig()
	vectors := 0
	fixture := replay.Fixture{
		Gallery:     make([]replay.FixtureIdentity, 0, len(entries)),
		Identities:  identities,
		Assignments: fixtureAssignments,
		Config: replay.FixtureRecognizeConfig{
			DistanceThreshold: cfg.DistanceThreshold,
			MinConfidence:     cfg.MinConfidence,
		},
	}

	for _, e := range entries {
		fixture.Gallery = append(fixture.Gallery, replay.FixtureIdentity{
			IdentityKey: e.IdentityKey,
			Vectors:     e.Vectors,
		})
		for vi, vec := range e.Vectors {
			frameID := fmt.Sprintf("%s-%d", e.IdentityKey, vi)
			fixture.Frames = append(fixture.Frames, replay.FixtureFrame{
				FrameID:   frameID,
				ContextID: contextID,
				Faces: []replay.FixtureFace{{
					Box:       replay.FixtureRect{W: 100, H: 100},
					Embedding: vec,
				}},
			})
			exp := replay.FixtureExpected{FrameID: frameID, IdentityKey: e.IdentityKey}
			if assigned[e.IdentityKey+"/"+contextID] {
				exp.Authorized = true
			} else {
				exp.Reason = string(authz.ReasonNotAssigned)
			}
			fixture.Expected = append(fixture.Expected, exp)
			vectors++
		}
	}

	fixture.Description = fmt.Sprintf("Self-probe export: %d identities, %d vectors, context %s",
		len(entries), vectors, contextID)
	return fixture
}

// #endregion build

// #region output

func writeFixture(fixture replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d frames)\n", outPath, len(data), len(fixture.Frames))
	return nil
}

// #endregion output
