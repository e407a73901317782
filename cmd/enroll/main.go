package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/boardgate/internal/directory"
	"github.com/danielpatrickdp/boardgate/internal/watch"
)

// #region main

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "add":
		err = runAdd(args)
	case "remove":
		err = runRemove(args)
	case "add-photo":
		err = runPhoto(args, true)
	case "remove-photo":
		err = runPhoto(args, false)
	case "sync-photos":
		err = runSyncPhotos(args)
	case "assign":
		err = runAssignment(args, true)
	case "unassign":
		err = runAssignment(args, false)
	case "list":
		err = runList(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: enroll <command> [flags]

commands:
  add           --db F --key K [--name N]   enroll an identity
  remove        --db F --key K              remove an identity, its photos and assignments
  add-photo     --db F --key K --path P     register a reference photo
  remove-photo  --db F --key K --path P     drop a reference photo
  sync-photos   --db F --key K --dir D      replace the photo set with a directory scan
  assign        --db F --key K --context C  grant boarding access to a context
  unassign      --db F --key K --context C  revoke boarding access
  list          --db F [--context C]        print identities and assignments

--db defaults to $BOARDGATE_DB`)
}

// #endregion main

// #region flags

// commonFlags carries the flags every subcommand shares.
type commonFlags struct {
	fs  *flag.FlagSet
	db  *string
	key *string
}

func newFlags(name string, needKey bool) commonFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := commonFlags{
		fs: fs,
		db: fs.String("db", envOr("BOARDGATE_DB", ""), "path to boardgate.db"),
	}
	if needKey {
		cf.key = fs.String("key", "", "identity key")
	}
	return cf
}

func (cf commonFlags) parse(args []string) (*directory.Store, error) {
	if err := cf.fs.Parse(args); err != nil {
		return nil, err
	}
	if *cf.db == "" {
		usage()
		os.Exit(2)
	}
	if cf.key != nil && *cf.key == "" {
		fmt.Fprintf(os.Stderr, "%s: --key required\n", cf.fs.Name())
		os.Exit(2)
	}
	return directory.NewStore(*cf.db)
}

// #endregion flags

// #region identity-commands

func runAdd(args []string) error {
	cf := newFlags("add", true)
	name := cf.fs.String("name", "", "display name (defaults to the key)")
	store, err := cf.parse(args)
	if err != nil {
		return err
	}
	defer store.Close()

	ident, err := store.AddIdentity(context.Background(), *cf.key, *name)
	if err != nil {
		return err
	}
	fmt.Printf("enrolled %s (%s)\n", ident.IdentityKey, ident.DisplayName)
	return nil
}

func runRemove(args []string) error {
	cf := newFlags("remove", true)
	store, err := cf.parse(args)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RemoveIdentity(context.Background(), *cf.key); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", *cf.key)
	return nil
}

// #endregion identity-commands

// #region photo-commands

func runPhoto(args []string, add bool) error {
	name := "remove-photo"
	if add {
		name = "add-photo"
	}
	cf := newFlags(name, true)
	path := cf.fs.String("path", "", "photo file path")
	store, err := cf.parse(args)
	if err != nil {
		return err
	}
	defer store.Close()
	if *path == "" {
		fmt.Fprintf(os.Stderr, "%s: --path required\n", name)
		os.Exit(2)
	}

	ctx := context.Background()
	if add {
		abs, err := filepath.Abs(*path)
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("photo file: %w", err)
		}
		if err := store.AddPhoto(ctx, *cf.key, abs); err != nil {
			return err
		}
		fmt.Printf("added photo %s to %s\n", abs, *cf.key)
		return nil
	}
	if err := store.RemovePhoto(ctx, *cf.key, *path); err != nil {
		return err
	}
	fmt.Printf("removed photo %s from %s\n", *path, *cf.key)
	return nil
}

func runSyncPhotos(args []string) error {
	cf := newFlags("sync-photos", true)
	dir := cf.fs.String("dir", "", "directory of photo files")
	name := cf.fs.String("name", "", "display name for a new identity")
	store, err := cf.parse(args)
	if err != nil {
		return err
	}
	defer store.Close()
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "sync-photos: --dir required")
		os.Exit(2)
	}

	paths, err := watch.ListPhotoFiles(*dir)
	if err != nil {
		return err
	}
	if err := store.SyncPhotoDir(context.Background(), *cf.key, *name, paths); err != nil {
		return err
	}
	fmt.Printf("synced %d photos to %s\n", len(paths), *cf.key)
	return nil
}

// #endregion photo-commands

// #region assignment-commands

func runAssignment(args []string, assign bool) error {
	name := "unassign"
	if assign {
		name = "assign"
	}
	cf := newFlags(name, true)
	contextID := cf.fs.String("context", "", "boarding context id")
	store, err := cf.parse(args)
	if err != nil {
		return err
	}
	defer store.Close()
	if *contextID == "" {
		fmt.Fprintf(os.Stderr, "%s: --context required\n", name)
		os.Exit(2)
	}

	ctx := context.Background()
	if assign {
		if err := store.Assign(ctx, *cf.key, *contextID); err != nil {
			return err
		}
		fmt.Printf("assigned %s to %s\n", *cf.key, *contextID)
		return nil
	}
	if err := store.Unassign(ctx, *cf.key, *contextID); err != nil {
		return err
	}
	fmt.Printf("unassigned %s from %s\n", *cf.key, *contextID)
	return nil
}

// #endregion assignment-commands

// #region list-command

func runList(args []string) error {
	cf := newFlags("list", false)
	contextID := cf.fs.String("context", "", "filter assignments to one context")
	store, err := cf.parse(args)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	identities, err := store.ListIdentities(ctx)
	if err != nil {
		return err
	}
	assignments, err := store.ListAssignments(ctx, *contextID)
	if err != nil {
		return err
	}

	// Group active contexts per identity
	contexts := make(map[string][]string)
	for _, a := range assignments {
		if a.Status == directory.AssignmentActive {
			contexts[a.IdentityKey] = append(contexts[a.IdentityKey], a.ContextID)
		}
	}

	fmt.Printf("%-20s  %-24s  %6s  %4s  %s\n", "Key", "Name", "Photos", "Ver", "Contexts")
	for _, ident := range identities {
		ctxList := ""
		for i, c := range contexts[ident.IdentityKey] {
			if i > 0 {
				ctxList += ", "
			}
			ctxList += c
		}
		fmt.Printf("%-20s  %-24s  %6d  %4d  %s\n",
			ident.IdentityKey, ident.DisplayName, ident.PhotoCount, ident.PhotoVersion, ctxList)
	}
	fmt.Printf("\n%d identities, %d assignments\n", len(identities), len(assignments))
	return nil
}

// #endregion list-command

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
